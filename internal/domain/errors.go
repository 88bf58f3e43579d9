package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a message, session or token is unknown.
var ErrNotFound = errors.New("not found")

// ErrInvalidInput is returned for a request that fails validation.
var ErrInvalidInput = errors.New("invalid input")

// ErrRunCancelled signals that a run was superseded or its client went away.
var ErrRunCancelled = errors.New("run cancelled")

// StorageError wraps a persistence failure. It is surfaced to the caller and
// never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MalformedAttachmentError reports an attachment whose data URL could not be used.
type MalformedAttachmentError struct {
	Filename string
	Reason   string
}

func (e *MalformedAttachmentError) Error() string {
	return fmt.Sprintf("malformed attachment %q: %s", e.Filename, e.Reason)
}

// ParseError reports a wire frame that could not be decoded.
type ParseError struct {
	Frame string
	Err   error
}

func (e *ParseError) Error() string {
	frame := e.Frame
	if len(frame) > 80 {
		frame = frame[:80] + "..."
	}
	return fmt.Sprintf("failed to parse frame %q: %v", frame, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
