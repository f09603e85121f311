package platform

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// ErrorClass says what an ingestion task should do with a stream error.
type ErrorClass int

const (
	// ErrorClassTransient drops the current event and keeps reading.
	ErrorClassTransient ErrorClass = iota
	// ErrorClassFatal ends the task.
	ErrorClassFatal
	// ErrorClassEndOfStream ends the task normally.
	ErrorClassEndOfStream
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassFatal:
		return "fatal"
	case ErrorClassEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as ending the stream regardless of its message.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Transient marks err as recoverable: the event it belongs to is lost but the stream continues.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// ClassifyStreamError maps an error returned by Stream.Next to an ErrorClass.
//
// End of stream: io.EOF.
// Fatal: errors wrapped with Fatal, cancellation, authorization and not-found failures, and anything unrecognized.
// Transient: errors wrapped with Transient, network timeouts, server errors (5xx) and rate limiting (429).
func ClassifyStreamError(err error) ErrorClass {
	if err == nil || errors.Is(err, io.EOF) {
		return ErrorClassEndOfStream
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassFatal
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return ErrorClassFatal
	}
	var te *transientError
	if errors.As(err, &te) {
		return ErrorClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorClassTransient
	}

	lower := strings.ToLower(err.Error())

	for _, p := range []string{"401", "403", "404", "unauthorized", "forbidden", "not found", "banned", "suspended"} {
		if strings.Contains(lower, p) {
			return ErrorClassFatal
		}
	}
	for _, p := range []string{
		"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable",
		"429", "too many requests", "rate limit",
		"connection reset", "timeout", "temporarily", "broken pipe",
	} {
		if strings.Contains(lower, p) {
			return ErrorClassTransient
		}
	}
	return ErrorClassFatal
}

// IsTransient reports whether err leaves the stream usable.
func IsTransient(err error) bool { return ClassifyStreamError(err) == ErrorClassTransient }
