package marketplace_errors

import "errors"

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
)

// Error pairs one of the sentinel kinds above with a message that is safe to
// show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func NotFound(message string) error {
	return New(ErrNotFound, message)
}

func Forbidden(message string) error {
	return New(ErrForbidden, message)
}

func BadRequest(message string) error {
	return New(ErrInvalidInput, message)
}

// Message returns the user facing text of err. Errors that do not carry one of
// the known kinds are reported generically so internals do not leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	for _, kind := range []error{ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrInvalidInput, ErrRateLimited, ErrAlreadyExists} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}
