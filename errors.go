package swiftchain

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to tell them apart.
var (
	// ErrConfig marks a request or client that could not be built: a malformed URL, an
	// unencodable body, an invalid configuration file. It is never retried.
	ErrConfig = errors.New("swiftchain: configuration error")

	// ErrDecode marks a response body that could not be read or converted.
	ErrDecode = errors.New("swiftchain: body decode error")

	// ErrStatus marks a response with a status code of 400 or above returned to a Recv helper.
	ErrStatus = errors.New("swiftchain: unexpected status")

	// ErrBodyTooLarge is the cause of an ErrDecode error when a body exceeds the client's limit.
	ErrBodyTooLarge = errors.New("swiftchain: response body too large")
)

// Error is returned by the request builder and the Recv helpers. Errors from middlewares and
// transports are returned by Send as they are, never wrapped in an Error.
type Error struct {
	Kind       error
	Message    string
	Cause      error
	StatusCode int
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("message: %s", e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf("\n cause: %s", e.Cause.Error())
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf("\n statusCode: %d", e.StatusCode)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func configError(message string, cause error) *Error {
	return &Error{Kind: ErrConfig, Message: message, Cause: cause}
}

func decodeError(message string, cause error, statusCode int) *Error {
	return &Error{Kind: ErrDecode, Message: message, Cause: cause, StatusCode: statusCode}
}
