package archive

import (
	"fmt"
)

// ParseError reports a thread file that could not be turned into a thread.
// The importer skips such files.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse thread: %v", e.Err)
	}
	return fmt.Sprintf("parse thread %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a message that lacks a required field.
type ValidationError struct {
	MessageID string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message %q: %v", e.MessageID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// WalkError reports a directory entry the walker could not read.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("walk %s: %v", e.Path, e.Err)
}

func (e *WalkError) Unwrap() error { return e.Err }
