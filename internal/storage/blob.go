package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"quicknotes/pkg/types"

	"go.uber.org/zap"
)

// BlobStore keeps the clip collection as one JSON array under a fixed key.
// There is no versioning: concurrent writers race and the last write wins.
type BlobStore struct {
	kv          KV
	key         string
	maxBlobSize int
	logger      *zap.Logger
}

// NewBlobStore creates a ClipStore on top of kv
func NewBlobStore(kv KV, config Config, logger *zap.Logger) *BlobStore {
	if config.Key == "" {
		config.Key = DefaultKey
	}
	if config.MaxBlobSize <= 0 {
		config.MaxBlobSize = DefaultMaxBlobSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{
		kv:          kv,
		key:         config.Key,
		maxBlobSize: config.MaxBlobSize,
		logger:      logger.Named("store"),
	}
}

// Key returns the key the collection is stored under
func (s *BlobStore) Key() string {
	return s.key
}

// Load implements ClipStore
func (s *BlobStore) Load(ctx context.Context) []types.Clip {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Error("Error loading clips", zap.Error(&ReadError{Key: s.key, Err: err}))
		return []types.Clip{}
	}
	if !ok {
		return []types.Clip{}
	}

	var clips []types.Clip
	if err := json.Unmarshal(data, &clips); err != nil {
		s.logger.Error("Stored clips are not a valid collection, treating as empty",
			zap.Int("bytes", len(data)),
			zap.Error(&ReadError{Key: s.key, Err: err}))
		return []types.Clip{}
	}
	if clips == nil {
		return []types.Clip{}
	}

	s.logger.Debug("Loaded clips", zap.Int("count", len(clips)))
	return clips
}

// Save implements ClipStore
func (s *BlobStore) Save(ctx context.Context, clips []types.Clip) error {
	if clips == nil {
		clips = []types.Clip{}
	}

	data, err := json.Marshal(clips)
	if err != nil {
		return &WriteError{Key: s.key, Err: fmt.Errorf("failed to encode clips: %w", err)}
	}
	if len(data) > s.maxBlobSize {
		return &WriteError{Key: s.key, Err: ErrQuotaExceeded}
	}

	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return &WriteError{Key: s.key, Err: err}
	}

	s.logger.Debug("Saved clips", zap.Int("count", len(clips)), zap.Int("bytes", len(data)))
	return nil
}

var _ ClipStore = (*BlobStore)(nil)
