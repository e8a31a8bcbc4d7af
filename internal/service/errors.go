package service

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed
type Kind string

const (
	KindStorageWrite    Kind = "storage_write"
	KindImportFormat    Kind = "import_format"
	KindImportRead      Kind = "import_read"
	KindFileType        Kind = "file_type"
	KindNotFound        Kind = "not_found"
	KindNothingToExport Kind = "nothing_to_export"
	KindInvalidInput    Kind = "invalid_input"
)

// NoteError is returned by every NoteService operation that fails
type NoteError struct {
	Op      string // Operation that failed
	Kind    Kind   // Failure category
	Message string // Error message
	Err     error  // Underlying error
}

func (e *NoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *NoteError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not a NoteError
func KindOf(err error) Kind {
	var noteErr *NoteError
	if errors.As(err, &noteErr) {
		return noteErr.Kind
	}
	return ""
}

// IsStorageWrite reports whether err is a save failure. The operation's
// in-memory result is still valid when this is true.
func IsStorageWrite(err error) bool {
	return KindOf(err) == KindStorageWrite
}
