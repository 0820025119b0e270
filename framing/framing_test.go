package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame_Escaping(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{
			name:    "plain bytes untouched",
			payload: []byte{0x01, 0x02, 0x03},
			want:    []byte{End, 0x01, 0x02, 0x03, End},
		},
		{
			name:    "end byte escaped",
			payload: []byte{0x01, End, 0x02},
			want:    []byte{End, 0x01, Esc, EscEnd, 0x02, End},
		},
		{
			name:    "escape byte escaped",
			payload: []byte{Esc},
			want:    []byte{End, Esc, EscEsc, End},
		},
		{
			name:    "empty payload",
			payload: nil,
			want:    []byte{End, End},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeFrame(tt.payload))
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x10, 0x20, 0x30},
		{End},
		{Esc},
		{End, Esc, End, Esc},
		{0x00, 0xFF, End, 0x7F, Esc, 0x01},
	}

	for _, p := range payloads {
		var d StreamDecoder
		frames := d.Decode(EncodeFrame(p))
		require.Len(t, frames, 1)
		assert.Equal(t, p, frames[0])
		assert.LessOrEqual(t, d.Pending(), 1) // at most the trailing delimiter
	}
}

func TestDecode_ChunkInvariant(t *testing.T) {
	payload := []byte{0x01, End, 0x02, Esc, 0x03, 0x04}
	encoded := EncodeFrame(payload)

	// Splitting the encoded buffer at any byte boundary must yield the same
	// frame set as a single call.
	for split := 0; split <= len(encoded); split++ {
		var d StreamDecoder
		var frames [][]byte
		frames = append(frames, d.Decode(encoded[:split])...)
		frames = append(frames, d.Decode(encoded[split:])...)
		require.Len(t, frames, 1, "split at %d", split)
		assert.Equal(t, payload, frames[0], "split at %d", split)
	}
}

func TestDecode_MultipleFramesPerCall(t *testing.T) {
	a := []byte{0x0A}
	b := []byte{0x0B, End}
	buf := append(EncodeFrame(a), EncodeFrame(b)...)

	var d StreamDecoder
	frames := d.Decode(buf)
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
}

func TestDecode_PartialFramePreserved(t *testing.T) {
	var d StreamDecoder

	// Open delimiter plus body, no closing delimiter yet.
	frames := d.Decode([]byte{End, 0x01, 0x02})
	assert.Empty(t, frames)
	assert.Equal(t, 3, d.Pending())

	frames = d.Decode([]byte{0x03, End})
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, frames[0])
}

func TestDecode_AmbiguousTrailingEscape(t *testing.T) {
	var d StreamDecoder

	// ESC at the end of the chunk must not be resolved until the next byte.
	frames := d.Decode([]byte{End, 0x01, Esc})
	assert.Empty(t, frames)

	frames = d.Decode([]byte{EscEnd, End})
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x01, End}, frames[0])
}

func TestDecode_LeadingGarbageDiscarded(t *testing.T) {
	var d StreamDecoder

	payload := []byte{0xAA}
	buf := append([]byte{0x55, 0x66, 0x77}, EncodeFrame(payload)...)
	frames := d.Decode(buf)
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}

func TestDecode_GarbageOnlyDropped(t *testing.T) {
	var d StreamDecoder

	frames := d.Decode([]byte{0x55, 0x66})
	assert.Empty(t, frames)
	// No frame start seen, nothing retained.
	assert.Equal(t, 0, d.Pending())
}

func TestDecode_EmptyFramesSkipped(t *testing.T) {
	var d StreamDecoder

	frames := d.Decode([]byte{End, End, End, 0x42, End})
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x42}, frames[0])
}

func TestDecode_InvalidEscapeDiscardsUnit(t *testing.T) {
	var d StreamDecoder

	// ESC followed by a byte that is not a transposed marker.
	bad := []byte{End, 0x01, Esc, 0x99, End}
	frames := d.Decode(bad)
	assert.Empty(t, frames)

	// The decoder recovers on the next well-formed frame.
	frames = d.Decode(EncodeFrame([]byte{0x02}))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x02}, frames[0])
}

func TestDecode_Reset(t *testing.T) {
	var d StreamDecoder
	d.Decode([]byte{End, 0x01})
	require.NotZero(t, d.Pending())
	d.Reset()
	assert.Zero(t, d.Pending())
}
