package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindInvalidState
	KindInvalidInput
	KindInsufficientStock
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidInput:
		return "invalid_input"
	case KindInsufficientStock:
		return "insufficient_stock"
	}
	return "unknown"
}

// Error represents a domain error raised by an accessor or the order workflow.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...), nil)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...), nil)
}

func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, fmt.Sprintf(format, args...), nil)
}

func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, fmt.Sprintf(format, args...), nil)
}

func InsufficientStock(format string, args ...any) *Error {
	return New(KindInsufficientStock, fmt.Sprintf(format, args...), nil)
}

// Is reports whether err, or anything it wraps, is a domain error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first domain error in err's chain, or 0.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}
