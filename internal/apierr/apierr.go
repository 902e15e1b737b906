package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInvalidInput          = "invalid_input"
	CodePayloadTooLarge       = "payload_too_large"
	CodeUnsupportedConversion = "unsupported_conversion"
	CodeInternal              = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Internal hides the underlying cause from the caller entirely. The cause
// lives in the ledger's failure_reason, not in the response.
func Internal() *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Err: errors.New("internal error, operation was recorded and not retried")}
}

// From returns err as *Error when it is one, otherwise wraps it as an
// opaque internal error.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal()
}
