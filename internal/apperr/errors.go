package apperr

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the document engine. Callers match them with errors.Is.
var (
	// ErrValidation is returned for bad input shape or values.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced document, estimate or invoice is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the operation is not legal for the current state,
	// e.g. converting an estimate that is not approved.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is returned when a collaborator (renderer, mailer, payment
	// provider) is disabled or unreachable.
	ErrUnavailable = errors.New("external service unavailable")

	// ErrRenderFailure is returned when artifact generation fails or times out.
	ErrRenderFailure = errors.New("render failed")

	// ErrReconciliationRejected is returned when a webhook event fails verification.
	ErrReconciliationRejected = errors.New("reconciliation rejected")
)

// Error carries the failing operation and a user-facing message alongside its kind.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Op is the operation that failed (e.g. "documents.Create").
	Op string

	// Message is safe to return to API callers.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's kind as well as anything in its cause chain.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

func newError(kind error, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

func Validation(op, format string, args ...any) error {
	return newError(ErrValidation, op, fmt.Sprintf(format, args...), nil)
}

func NotFound(op, format string, args ...any) error {
	return newError(ErrNotFound, op, fmt.Sprintf(format, args...), nil)
}

func Conflict(op, format string, args ...any) error {
	return newError(ErrConflict, op, fmt.Sprintf(format, args...), nil)
}

func Unavailable(op, service string, err error) error {
	return newError(ErrUnavailable, op, service+" is unavailable", err)
}

func RenderFailure(op string, err error) error {
	return newError(ErrRenderFailure, op, "could not render document", err)
}

func Rejected(op string, err error) error {
	return newError(ErrReconciliationRejected, op, "webhook verification failed", err)
}

// Message returns the user-facing message of an *Error, or a generic text.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}
