package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"quicknotes/internal/storage"
	"strings"
)

// Storage keeps each key in its own JSON file under a directory
type Storage struct {
	root string
}

// New creates a file substrate rooted at config.FSPath, creating it if needed
func New(config storage.Config) (*Storage, error) {
	if config.FSPath == "" {
		return nil, fmt.Errorf("file storage path is required")
	}
	if err := os.MkdirAll(config.FSPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Storage{root: config.FSPath}, nil
}

func (s *Storage) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key+".json"), nil
}

// Get implements storage.KV interface
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}

// Set implements storage.KV interface. The value is written to a temp file
// and renamed over the old one so readers never see a partial write.
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Close implements storage.KV interface
func (s *Storage) Close() error {
	return nil
}

var _ storage.KV = (*Storage)(nil)
