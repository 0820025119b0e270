// Package errors provides standardized error handling patterns for meshbridge
// components. It includes error classification, standard error variables, and
// helper functions for consistent error wrapping across the gateway.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common gateway conditions.
//
// The user-visible distinction between "device not connected", "channel not
// found" and "device not yet configured" matters to the relay layer, so each
// has its own sentinel.
var (
	// Adapter lifecycle errors
	ErrNotConnected     = errors.New("device not connected")
	ErrNotConfigured    = errors.New("device not yet configured")
	ErrAlreadyConnected = errors.New("adapter already connected")
	ErrChannelNotFound  = errors.New("channel not found")

	// Link-layer transport errors
	ErrPortUnavailable   = errors.New("port unavailable")
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrConnectionLost    = errors.New("connection lost")

	// Detection and handshake errors
	ErrHandshakeTimeout      = errors.New("handshake timeout")
	ErrDetectionExhausted    = errors.New("all candidate protocols failed")
	ErrUnknownProtocol       = errors.New("unknown protocol name")
	ErrMissingCharacteristic = errors.New("required characteristic not found")

	// Protocol parse errors
	ErrFrameTooShort = errors.New("frame too short")
	ErrParsingFailed = errors.New("parsing failed")

	// Subprocess IPC errors
	ErrSessionTerminated = errors.New("session terminated")
	ErrInitTimeout       = errors.New("initialization timeout")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried by a
// supervising layer. Handshake timeouts are transient at the detector level
// even though they are fatal to the single probing adapter.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrHandshakeTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrDeviceUnreachable) ||
		errors.Is(err, ErrInitTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop the owning adapter
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrUnknownProtocol) ||
		errors.Is(err, ErrMissingCharacteristic) ||
		errors.Is(err, ErrDetectionExhausted) {
		return true
	}

	return false
}

// IsInvalid checks if an error is due to invalid input. Invalid units are
// discarded without tearing down the connection.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	if errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrFrameTooShort) {
		return true
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Default to transient for unknown errors so a supervisor may retry
	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
