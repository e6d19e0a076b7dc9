// Package errors provides the error helpers used throughout vizier.  Every error created or
// wrapped here carries a stack trace (from github.com/pkg/errors).
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// New returns an error with the supplied message and a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Errorf formats according to a format specifier and returns an error with a stack trace.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Wrap annotates err with a message and a stack trace.  Wrap returns nil if err is nil.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message and a stack trace.  Wrapf returns nil if err is
// nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// EnsureStack adds a stack trace to err if it does not already have one.  Use it when returning
// errors from third-party libraries.
func EnsureStack(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if As(err, &st) {
		return err
	}
	return errors.WithStack(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// Close closes c and, if *retErr is nil, stores the close error in it.  It is intended to be
// deferred.
func Close(retErr *error, c interface{ Close() error }, msg string) {
	if err := c.Close(); err != nil && *retErr == nil {
		*retErr = errors.Wrap(err, msg)
	}
}
