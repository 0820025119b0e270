package ipc

import "bytes"

// lineBuffer accumulates pipe bytes that arrive in arbitrary chunking
// relative to line boundaries. Feed returns every complete line in the chunk
// and retains the trailing fragment for the next call.
type lineBuffer struct {
	pending []byte
}

// Feed appends chunk and splits out complete lines, without trailing
// newlines. Carriage returns before the newline are stripped.
func (b *lineBuffer) Feed(chunk []byte) [][]byte {
	b.pending = append(b.pending, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		line := b.pending[:i]
		b.pending = b.pending[i+1:]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		out := make([]byte, len(line))
		copy(out, line)
		lines = append(lines, out)
	}
	return lines
}

// Pending returns the size of the retained fragment.
func (b *lineBuffer) Pending() int { return len(b.pending) }
