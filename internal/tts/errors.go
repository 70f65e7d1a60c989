package tts

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for the transport layer
type Kind int

const (
	// KindService covers engine failures, empty output and local I/O problems
	KindService Kind = iota
	// KindValidation covers bad or missing input
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	default:
		return "service"
	}
}

// Error is the one error type the service returns.
// Message is safe to show to clients; Err is the cause and is only logged.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports bad input
func ValidationError(op, message string) error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// ServiceError reports a failure the caller cannot fix
func ServiceError(op, message string, err error) error {
	return &Error{Kind: KindService, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of err. Errors not produced by this package are service errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindService
}

// PublicMessage returns the client-facing message of err
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}
