package bboard

import "golang.org/x/xerrors"

// AssertionError is a business-rule violation. It is fatal to the
// invocation, which yields no state mutation, but is expected and
// recoverable at the caller level.
type AssertionError struct {
	reason string
}

// NewAssertionError returns an assertion error with the descriptive
// reason.
func NewAssertionError(reason string) AssertionError {
	return AssertionError{reason: reason}
}

// Error implements error.
func (e AssertionError) Error() string {
	return e.reason
}

// IsAssertion returns true when the error is, or wraps, an assertion
// error.
func IsAssertion(err error) bool {
	ae := AssertionError{}
	return xerrors.As(err, &ae)
}

// ShapeError is a malformed witness return value. It aborts the
// invocation before any mutation is committed.
type ShapeError struct {
	reason string
}

// NewShapeError returns a shape error with the descriptive reason.
func NewShapeError(reason string) ShapeError {
	return ShapeError{reason: reason}
}

// Error implements error.
func (e ShapeError) Error() string {
	return "shape error: " + e.reason
}

// IsShape returns true when the error is, or wraps, a shape error.
func IsShape(err error) bool {
	se := ShapeError{}
	return xerrors.As(err, &se)
}
