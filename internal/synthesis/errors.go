package synthesis

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind distinguishes synthesis failure modes.
type ErrorKind string

const (
	// KindTransport covers network failures and 5xx responses on submit,
	// poll, or fetch. Transient.
	KindTransport ErrorKind = "transport"

	// KindRequest covers 4xx responses. Permanent.
	KindRequest ErrorKind = "request"

	// KindFailed is a service-reported job failure.
	KindFailed ErrorKind = "failed"

	// KindCanceled is a service-reported cancellation.
	KindCanceled ErrorKind = "canceled"

	// KindTimeout means the polling wall-clock budget ran out while the job
	// was still pending. Distinct from KindFailed: the service never said no,
	// the pipeline stopped waiting.
	KindTimeout ErrorKind = "timeout"
)

// Error is the typed synthesis failure recorded into the book's error list.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("synthesis timed out: %s", e.Message)
	case KindFailed:
		return fmt.Sprintf("synthesis failed: %s", e.Message)
	case KindCanceled:
		return fmt.Sprintf("synthesis canceled: %s", e.Message)
	case KindTransport:
		if e.StatusCode > 0 {
			return fmt.Sprintf("synthesis transport error (status %d): %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("synthesis transport error: %s", e.Message)
	default:
		return fmt.Sprintf("synthesis request rejected (status %d): %s", e.StatusCode, e.Message)
	}
}

// Transient reports whether the error is worth retrying.
func (e *Error) Transient() bool {
	return e.Kind == KindTransport
}

// IsTransient reports whether err is a retryable synthesis failure.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}

// IsTimeout reports whether err is a polling-budget timeout.
func IsTimeout(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindTimeout
}

// KindOf extracts the error kind, defaulting to transport.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransport
}
