package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.class.String())
	}
}

func TestWrap_Format(t *testing.T) {
	base := fmt.Errorf("read /dev/ttyUSB0: no such file or directory")
	err := Wrap(base, "serial-adapter", "Connect", "port open")
	require.Error(t, err)
	assert.Equal(t, "serial-adapter.Connect: port open failed: read /dev/ttyUSB0: no such file or directory", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassify_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"handshake timeout", ErrHandshakeTimeout, ErrorTransient},
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"context deadline", context.DeadlineExceeded, ErrorTransient},
		{"unknown protocol", ErrUnknownProtocol, ErrorFatal},
		{"missing characteristic", ErrMissingCharacteristic, ErrorFatal},
		{"detection exhausted", ErrDetectionExhausted, ErrorFatal},
		{"frame too short", ErrFrameTooShort, ErrorInvalid},
		{"parse failure", ErrParsingFailed, ErrorInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_WrappedSentinels(t *testing.T) {
	err := Wrap(ErrParsingFailed, "serial-adapter", "handleFrame", "payload decode")
	assert.True(t, IsInvalid(err))
	assert.False(t, IsFatal(err))
}

func TestClassify_ExplicitWrapWins(t *testing.T) {
	// An explicitly classified error overrides sentinel-based classification.
	err := WrapFatal(fmt.Errorf("connection refused"), "ble-adapter", "Connect", "device dial")
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
}

func TestClassifiedError_Unwrap(t *testing.T) {
	base := ErrNotConnected
	err := WrapTransient(base, "router", "dispatch", "target send")
	assert.ErrorIs(t, err, base)

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "router", ce.Component)
	assert.Equal(t, "dispatch", ce.Operation)
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(fmt.Errorf("device busy")))
	assert.False(t, IsTransient(nil))
}
