package kit

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an application error that knows which HTTP status it maps to.
// Message is safe to show to clients; Cause is only ever logged.
type Error struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error with the given status and client message.
func NewError(status int, code, message string, cause error) *Error {
	return &Error{Status: status, Code: code, Message: message, Cause: cause}
}

// BadRequest is shorthand for a 400 with code "invalid_input".
func BadRequest(message string) *Error {
	return NewError(http.StatusBadRequest, "invalid_input", message, nil)
}

// NotFound is shorthand for a 404 with code "not_found".
func NotFound(message string) *Error {
	return NewError(http.StatusNotFound, "not_found", message, nil)
}

// Internal wraps cause behind a 500 with a fixed client message.
func Internal(message string, cause error) *Error {
	return NewError(http.StatusInternalServerError, "internal", message, cause)
}

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
