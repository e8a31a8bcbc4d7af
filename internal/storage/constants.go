package storage

import "errors"

const (
	// DefaultKey is the fixed key the clip collection is stored under.
	DefaultKey = "quicknotes-clips"

	// DefaultMaxBlobSize mirrors the per-origin quota browsers give local storage.
	DefaultMaxBlobSize = 5 * 1024 * 1024 // 5MB

	// Substrate backends
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Storage errors
var (
	ErrQuotaExceeded = errors.New("serialized collection exceeds storage quota")
	ErrInvalidKey    = errors.New("invalid storage key")
)
