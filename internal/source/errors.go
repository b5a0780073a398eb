package source

import (
	"errors"
	"time"
)

// Kind classifies a Source failure. These are the only distinctions the
// rest of the application acts on.
type Kind int

const (
	// KindSourceError is any other upstream failure, including timeouts.
	KindSourceError Kind = iota
	KindInvalidInput
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "source_error"
	}
}

// Error is the error type returned by every Client method and by ParseUsername.
type Error struct {
	Kind    Kind
	Message string
	// ResetAt is when the upstream quota resets. Only set for KindRateLimited.
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err. Errors that did not come from
// this package are reported as KindSourceError.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindSourceError
}

// ResetAt returns the quota reset time carried by a rate-limit error.
func ResetAt(err error) (time.Time, bool) {
	var serr *Error
	if errors.As(err, &serr) && serr.Kind == KindRateLimited {
		return serr.ResetAt, true
	}
	return time.Time{}, false
}

func invalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}
