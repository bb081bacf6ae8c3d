package ingest

import (
	"errors"
	"fmt"
)

// TransientSinkError marks a sink failure presumed retry-recoverable:
// connection loss, timeout, momentary unavailability.
type TransientSinkError struct {
	Err error
}

func (e *TransientSinkError) Error() string {
	return fmt.Sprintf("transient sink error: %v", e.Err)
}

func (e *TransientSinkError) Unwrap() error { return e.Err }

// FatalSinkError marks a sink failure that retrying cannot fix: bad
// credentials, missing table, schema mismatch. It aborts the run when raised
// before any chunk and stops it mid-run otherwise.
type FatalSinkError struct {
	Err error
}

func (e *FatalSinkError) Error() string {
	return fmt.Sprintf("fatal sink error: %v", e.Err)
}

func (e *FatalSinkError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientSinkError; nil passes through.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientSinkError{Err: err}
}

// Fatal wraps err as a FatalSinkError; nil passes through.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalSinkError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientSinkError.
func IsTransient(err error) bool {
	var t *TransientSinkError
	return errors.As(err, &t)
}

// IsFatal reports whether err is (or wraps) a FatalSinkError.
func IsFatal(err error) bool {
	var f *FatalSinkError
	return errors.As(err, &f)
}
