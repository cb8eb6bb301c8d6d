package vfs

import (
	"errors"
	"fmt"
)

var (
	// ErrDifferentVolume marks a rename that crossed a volume boundary.
	// Callers fall back to copy + delete.
	ErrDifferentVolume = errors.New("items are on different volumes")

	// ErrFileLocked marks a copy source held open exclusively elsewhere.
	ErrFileLocked = errors.New("file is locked")
)

// FileError is the generic I/O failure of the abstract filesystem. Msg is
// displayable; the wrapped error carries the cause (possibly one of the
// sentinel kinds above).
type FileError struct {
	Msg string
	Err error
}

func (e *FileError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// NewFileError wraps err with a displayable message.
func NewFileError(msg string, err error) *FileError {
	return &FileError{Msg: msg, Err: err}
}

func FileErrorf(err error, format string, args ...any) *FileError {
	return &FileError{Msg: fmt.Sprintf(format, args...), Err: err}
}
