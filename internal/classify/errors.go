package classify

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind distinguishes the failure modes of a classification call.
type ErrorKind string

const (
	// KindTransport covers network failures and 5xx responses. Transient:
	// the retry envelope re-attempts these.
	KindTransport ErrorKind = "transport"

	// KindRequest covers 4xx responses. The request itself is malformed or
	// rejected; retrying cannot help, so it surfaces immediately.
	KindRequest ErrorKind = "request"

	// KindUnparseable means the service response contained no usable JSON
	// object. Permanent for the attempt's purposes.
	KindUnparseable ErrorKind = "unparseable"

	// KindMissingKeys means JSON was found but one or more schema keys were
	// absent or empty. Permanent.
	KindMissingKeys ErrorKind = "missing_keys"
)

// Error is the typed classification failure carried through the pipeline and
// into the book's error list.
type Error struct {
	Kind        ErrorKind
	Message     string
	StatusCode  int           // HTTP status when applicable
	MissingKeys []string      // populated for KindMissingKeys
	RetryAfter  time.Duration // server-provided backoff hint, when present
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingKeys:
		return fmt.Sprintf("classification missing keys: %s", strings.Join(e.MissingKeys, ", "))
	case KindTransport:
		if e.StatusCode > 0 {
			return fmt.Sprintf("classification transport error (status %d): %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("classification transport error: %s", e.Message)
	case KindRequest:
		return fmt.Sprintf("classification request rejected (status %d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("classification %s: %s", e.Kind, e.Message)
	}
}

// Transient reports whether the error is worth retrying.
func (e *Error) Transient() bool {
	return e.Kind == KindTransport
}

// IsTransient reports whether err is a retryable classification failure.
// Non-classification errors (cancelled contexts, programming errors) are not
// retried.
func IsTransient(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Transient()
	}
	return false
}

// KindOf extracts the error kind, defaulting to transport for plain errors
// from the HTTP layer.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransport
}
