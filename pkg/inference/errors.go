package inference

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrorKind tells callers whether repeating the request may succeed.
type ErrorKind string

const (
	// ErrorTransient covers rate limits, unavailability and timeouts.
	ErrorTransient ErrorKind = "transient"
	// ErrorPermanent covers invalid input and refused requests.
	ErrorPermanent ErrorKind = "permanent"
)

// Error is returned by every Client in this package when a completion fails.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inference (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
func (e *Error) Cause() error  { return e.Err }

func NewTransientError(err error) error {
	return &Error{Kind: ErrorTransient, Err: err}
}

func NewPermanentError(err error) error {
	return &Error{Kind: ErrorPermanent, Err: err}
}

// IsTransient reports whether err is an inference error worth retrying.
func IsTransient(err error) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == ErrorTransient
}

// IsPermanent reports whether err is an inference error that will not go away on retry.
func IsPermanent(err error) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == ErrorPermanent
}

// IsInferenceError reports whether err carries an *Error of either kind.
func IsInferenceError(err error) bool {
	var ie *Error
	return errors.As(err, &ie)
}

// classifyTransport maps failures that are not provider API errors. Anything
// that is not clearly a timeout or network problem is treated as permanent.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if IsInferenceError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(err)
	}
	if errors.Is(err, context.Canceled) {
		return NewPermanentError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError(err)
	}
	return NewPermanentError(err)
}
