package storage

import (
	"context"
	"fmt"
	"quicknotes/pkg/types"
)

// KV is the key-value substrate the clip collection is persisted in
type KV interface {
	// Get returns the value stored under key; ok is false when the key is absent
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set replaces the value stored under key
	Set(ctx context.Context, key string, value []byte) error

	// Close releases the substrate
	Close() error
}

// ClipStore loads and saves the whole clip collection
type ClipStore interface {
	// Load returns the stored collection. Missing or unreadable data yields an empty collection.
	Load(ctx context.Context) []types.Clip

	// Save replaces the stored collection
	Save(ctx context.Context, clips []types.Clip) error
}

// Config holds storage configuration
type Config struct {
	Backend     string // sqlite, file or memory
	DBPath      string // Path to SQLite database
	FSPath      string // Directory for the file backend
	Key         string // Key the collection is stored under
	MaxBlobSize int    // Largest serialized collection accepted by Save
}

// ReadError reports a stored value that could not be read or decoded
type ReadError struct {
	Key string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %q: %v", e.Key, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// WriteError reports a collection the substrate refused to store
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %q: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
