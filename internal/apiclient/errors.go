package apiclient

import (
	"errors"
	"fmt"
)

const (
	// GenericFailureMessage is shown when the server supplied no structured detail.
	GenericFailureMessage = "request failed"

	errorMessageAuthExpired = "apiclient: credential expired"
)

// AuthExpiredError signals a 401 response or an absent credential. The
// credential has already been cleared when this error is returned; the caller
// must redirect to login with Next as the return path and must not apply any
// payload that arrived alongside it.
type AuthExpiredError struct {
	Next string
}

func (authErr *AuthExpiredError) Error() string {
	return fmt.Sprintf("%s (next %s)", errorMessageAuthExpired, authErr.Next)
}

// RemoteError carries the server-supplied detail of a non-2xx response.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (remoteErr *RemoteError) Error() string {
	return fmt.Sprintf("apiclient: status %d: %s", remoteErr.StatusCode, remoteErr.Message())
}

// Message returns the server detail verbatim, falling back to the generic
// failure message when the body carried none.
func (remoteErr *RemoteError) Message() string {
	if remoteErr.Detail == "" {
		return GenericFailureMessage
	}
	return remoteErr.Detail
}

// TransportError wraps a network or JSON decode failure with no structured body.
type TransportError struct {
	Operation string
	Err       error
}

func (transportErr *TransportError) Error() string {
	return fmt.Sprintf("apiclient: %s: %v", transportErr.Operation, transportErr.Err)
}

func (transportErr *TransportError) Unwrap() error {
	return transportErr.Err
}

// ValidationError reports locally detected bad input; the request is never sent.
type ValidationError struct {
	Message string
}

func (validationErr *ValidationError) Error() string {
	return validationErr.Message
}

// IsAuthExpired reports whether the error chain contains an AuthExpiredError.
func IsAuthExpired(err error) bool {
	var authExpired *AuthExpiredError
	return errors.As(err, &authExpired)
}
