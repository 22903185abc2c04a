// Package apperr holds the error taxonomy shared by forge3d components and
// its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable means a dependency is not installed, configured or reachable
	ErrUnavailable = errors.New("unavailable")
	// ErrNotFound means a referenced file or part does not exist
	ErrNotFound = errors.New("not found")
	// ErrTimeout means an external subprocess exceeded its time bound
	ErrTimeout = errors.New("timed out")
	// ErrInvalid means a malformed request
	ErrInvalid = errors.New("invalid")
	// ErrUpstream means a remote HTTP dependency answered with an error status
	ErrUpstream = errors.New("upstream error")
)

// Error attaches a taxonomy kind to a client facing message and an
// optional cause
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind
func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind caused by err
func Wrap(kind error, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// UpstreamError carries the status code returned by a remote dependency
type UpstreamError struct {
	URL    string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Status maps an error onto the HTTP status the API answers with
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message renders the client-facing message. Unclassified failures are
// prefixed with the operation name.
func Message(operation string, err error) string {
	if Status(err) == http.StatusInternalServerError {
		return fmt.Sprintf("%s failed: %v", operation, err)
	}
	return err.Error()
}
