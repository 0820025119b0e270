// Package framing implements the escaped byte-stream framing used by the
// simple serial radio transport.
//
// Frames are delimited by a reserved END byte. Any END or ESC byte occurring
// inside a payload is replaced by a two-byte escape sequence before
// transmission and reversed on receipt. The decoder is a streaming scanner
// over an accumulating buffer: it tolerates partial frames split across read
// events, discards leading garbage that is not a frame start, and emits zero
// or more complete frames per call while retaining incomplete trailing bytes.
package framing

// Reserved link-layer byte values.
const (
	// End delimits frames on the wire.
	End byte = 0xC0
	// Esc introduces a two-byte escape sequence.
	Esc byte = 0xDB
	// EscEnd is the transposed form of a literal End inside a payload.
	EscEnd byte = 0xDC
	// EscEsc is the transposed form of a literal Esc inside a payload.
	EscEsc byte = 0xDD
)

// EncodeFrame wraps payload in END delimiters, escaping any reserved bytes.
// The leading END flushes line noise accumulated on the receiver side.
func EncodeFrame(payload []byte) []byte {
	// Worst case every byte escapes, plus two delimiters.
	out := make([]byte, 0, len(payload)*2+2)
	out = append(out, End)
	for _, b := range payload {
		switch b {
		case End:
			out = append(out, Esc, EscEnd)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}
	out = append(out, End)
	return out
}

// StreamDecoder accumulates raw bytes from a transport and extracts complete,
// unescaped frames. The zero value is ready to use. Not safe for concurrent
// use; each transport read loop owns one decoder.
type StreamDecoder struct {
	pending []byte
}

// Decode appends chunk to the internal buffer and returns all complete frames
// now available, in arrival order. Empty frames (back-to-back delimiters) are
// skipped. Bytes after the last complete frame, including an ambiguous
// trailing escape byte, stay buffered until the next call.
func (d *StreamDecoder) Decode(chunk []byte) [][]byte {
	d.pending = append(d.pending, chunk...)

	var frames [][]byte
	for {
		frame, rest, ok := scanFrame(d.pending)
		d.pending = rest
		if !ok {
			break
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Pending returns the number of buffered bytes awaiting frame completion.
func (d *StreamDecoder) Pending() int {
	return len(d.pending)
}

// Reset discards any buffered partial frame. Called when the link is
// reopened so stale bytes from the previous session cannot prefix a frame.
func (d *StreamDecoder) Reset() {
	d.pending = nil
}

// scanFrame extracts the first complete frame from buf.
// Returns (frame, remainder, true) when a full delimited frame was found;
// frame is nil for an empty frame. Returns (nil, buf, false) when more bytes
// are needed.
func scanFrame(buf []byte) (frame, rest []byte, ok bool) {
	// Discard leading garbage before the first delimiter. Anything that
	// precedes an END cannot be the start of a frame we witnessed opening.
	start := -1
	for i, b := range buf {
		if b == End {
			start = i
			break
		}
	}
	if start < 0 {
		// No frame start at all; drop the garbage.
		return nil, nil, false
	}

	// Collapse consecutive delimiters: the frame body begins after the
	// last END in the opening run.
	body := start + 1
	for body < len(buf) && buf[body] == End {
		body++
	}
	if body >= len(buf) {
		// Opening delimiter(s) only so far; keep one END as the open marker.
		return nil, buf[body-1:], false
	}

	// Find the closing delimiter.
	closing := -1
	for i := body; i < len(buf); i++ {
		if buf[i] == End {
			closing = i
			break
		}
	}
	if closing < 0 {
		// Frame still open. Retain from the opening END.
		return nil, buf[body-1:], false
	}

	decoded, derr := unescape(buf[body:closing])
	rest = buf[closing:] // closing END doubles as the next frame's opener
	if derr != nil {
		// Malformed escape sequence: discard the unit, keep scanning.
		return nil, rest, true
	}
	return decoded, rest, true
}

// errBadEscape reports an ESC followed by an unrecognized byte.
type errBadEscape struct{}

func (errBadEscape) Error() string { return "invalid escape sequence" }

// unescape reverses the two-byte escape sequences in a frame body.
func unescape(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b != Esc {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(body) {
			// Cannot happen for a closed frame: an ESC directly before the
			// closing END is malformed.
			return nil, errBadEscape{}
		}
		switch body[i] {
		case EscEnd:
			out = append(out, End)
		case EscEsc:
			out = append(out, Esc)
		default:
			return nil, errBadEscape{}
		}
	}
	return out, nil
}
