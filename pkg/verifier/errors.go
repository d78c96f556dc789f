package verifier

import (
	"fmt"

	"github.com/pkg/errors"
)

// constraintError is a violated structural constraint. It never leaves the
// package: the pass that produced it turns it into a rejection.
type constraintError struct {
	msg string
}

func (e *constraintError) Error() string { return e.msg }

func violation(format string, args ...interface{}) error {
	return &constraintError{msg: fmt.Sprintf(format, args...)}
}

// annotate prefixes the message of a constraint violation. Faults pass
// through unchanged.
func annotate(err error, format string, args ...interface{}) error {
	var ce *constraintError
	if errors.As(err, &ce) {
		return &constraintError{msg: fmt.Sprintf(format, args...) + ": " + ce.msg}
	}
	return err
}

// AssertionViolatedError reports a broken internal invariant of the
// verifier itself, as opposed to a bad input.
type AssertionViolatedError struct {
	Msg string
}

func (e *AssertionViolatedError) Error() string {
	return "verifier assertion violated: " + e.Msg
}

func assertionf(format string, args ...interface{}) error {
	return errors.WithStack(&AssertionViolatedError{Msg: fmt.Sprintf(format, args...)})
}

// IsAssertionViolated reports whether err is, or wraps, an AssertionViolatedError.
func IsAssertionViolated(err error) bool {
	var ae *AssertionViolatedError
	return errors.As(err, &ae)
}

// resultOf maps the outcome of a pass body to its Result. Anything other
// than a constraint violation is a fault and is returned as an error.
func resultOf(err error) (Result, error) {
	if err == nil {
		return ResultOK, nil
	}
	var ce *constraintError
	if errors.As(err, &ce) {
		return Reject(ce.msg), nil
	}
	return Result{}, err
}
