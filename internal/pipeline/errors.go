package pipeline

import (
	"errors"
	"fmt"

	"github.com/pgavlin/inkframe/internal/fetch"
)

// Error kinds. Every error returned by a Pipeline matches exactly one of these with errors.Is.
var (
	ErrInitialization    = errors.New("initialization error")
	ErrNetwork           = errors.New("network error")
	ErrHTTPStatus        = errors.New("http status error")
	ErrDecode            = errors.New("decode error")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrInvalidArgument   = errors.New("invalid argument")

	errClosed = errors.New("pipeline is closed")
)

// An Error records the kind of a pipeline failure, the stage that failed, and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// fetchError classifies an error returned by the fetcher.
func fetchError(err error) *Error {
	var status *fetch.StatusError
	switch {
	case errors.As(err, &status):
		return newError(ErrHTTPStatus, "fetch", err)
	case errors.Is(err, fetch.ErrInvalidURL):
		return newError(ErrInvalidArgument, "fetch", err)
	default:
		return newError(ErrNetwork, "fetch", err)
	}
}
