package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"quicknotes/internal/metrics"
	"quicknotes/internal/query"
	"quicknotes/internal/storage"
	"quicknotes/internal/transfer"
	"quicknotes/pkg/types"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CaptureStatus is the outcome of a capture
type CaptureStatus string

const (
	CaptureSaved     CaptureStatus = "saved"
	CaptureDuplicate CaptureStatus = "duplicate"
	CaptureIgnored   CaptureStatus = "ignored"
)

// CaptureResult describes what happened to a captured string
type CaptureResult struct {
	Status CaptureStatus
	Clip   *types.Clip // set when Status is CaptureSaved
}

// ImportResult describes a completed import
type ImportResult struct {
	Count int          // Number of records imported
	Clips []types.Clip // Merged collection
}

// NoteService owns the clip collection: every action loads it from the
// store, changes it and saves it back.
type NoteService struct {
	store    storage.ClipStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	mu       sync.Mutex // serializes load/save pairs of one action
	handlers []ClipsChangeHandler
	hmu      sync.RWMutex
}

// Option configures a NoteService
type Option func(*NoteService)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *NoteService) {
		s.now = now
	}
}

// WithMetrics records operation counters in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *NoteService) {
		s.metrics = m
	}
}

// New creates a new NoteService
func New(store storage.ClipStore, logger *zap.Logger, opts ...Option) *NoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NoteService{
		store:  store,
		logger: logger.Named("notes"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHandler adds a renderer that receives the collection after changes
func (s *NoteService) RegisterHandler(handler ClipsChangeHandler) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *NoteService) render(clips []types.Clip) {
	s.hmu.RLock()
	handlers := s.handlers // Copy to avoid holding lock during callbacks
	s.hmu.RUnlock()

	for _, handler := range handlers {
		handler.Render(clips)
	}
}

// save writes clips and reports a failed write as a NoteError. The caller
// keeps clips as the session's collection either way.
func (s *NoteService) save(ctx context.Context, op string, clips []types.Clip) error {
	s.metrics.Stored(len(clips))
	if err := s.store.Save(ctx, clips); err != nil {
		s.metrics.WriteFailure()
		s.logger.Error("Error saving clips", zap.String("op", op), zap.Error(err))
		return &NoteError{
			Op:      op,
			Kind:    KindStorageWrite,
			Message: "failed to save clips",
			Err:     err,
		}
	}
	return nil
}

// List returns the full collection
func (s *NoteService) List(ctx context.Context) []types.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load(ctx)
}

// Refresh loads the collection and renders it
func (s *NoteService) Refresh(ctx context.Context) []types.Clip {
	clips := s.List(ctx)
	s.render(clips)
	return clips
}

// Filter returns and renders the clips matching term. Storage is not touched.
func (s *NoteService) Filter(ctx context.Context, term string) []types.Clip {
	filtered := query.Filter(s.List(ctx), term)
	s.render(filtered)
	return filtered
}

// AddClip prepends a new clip to the collection. It does not check for
// duplicates; Capture does.
func (s *NoteService) AddClip(ctx context.Context, content string, tags []string) (types.Clip, error) {
	s.mu.Lock()
	clip, clips, err := s.addLocked(ctx, content, tags)
	s.mu.Unlock()

	if clips != nil {
		s.render(clips)
	}
	return clip, err
}

func (s *NoteService) addLocked(ctx context.Context, content string, tags []string) (types.Clip, []types.Clip, error) {
	if content == "" {
		return types.Clip{}, nil, &NoteError{
			Op:      "AddClip",
			Kind:    KindInvalidInput,
			Message: "content cannot be empty",
		}
	}

	clip := types.NewClipAt(content, tags, s.now())
	clips := append([]types.Clip{clip}, s.store.Load(ctx)...)

	err := s.save(ctx, "AddClip", clips)
	s.logger.Debug("Added clip", zap.String("id", clip.ID), zap.Int("total", len(clips)))
	return clip, clips, err
}

// Capture stores a copied string unless it is empty after trimming or an
// existing clip already has exactly the same content.
func (s *NoteService) Capture(ctx context.Context, raw string) (CaptureResult, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		s.metrics.Capture(string(CaptureIgnored))
		return CaptureResult{Status: CaptureIgnored}, nil
	}

	s.mu.Lock()
	for _, existing := range s.store.Load(ctx) {
		if existing.Content == content {
			s.mu.Unlock()
			s.metrics.Capture(string(CaptureDuplicate))
			s.logger.Debug("Skipping duplicate clip", zap.String("id", existing.ID))
			return CaptureResult{Status: CaptureDuplicate}, nil
		}
	}
	clip, clips, err := s.addLocked(ctx, content, nil)
	s.mu.Unlock()

	s.metrics.Capture(string(CaptureSaved))
	s.render(clips)
	s.logger.Info("Stored new clip", zap.String("id", clip.ID), zap.Int("length", len(content)))
	return CaptureResult{Status: CaptureSaved, Clip: &clip}, err
}

// DeleteClip removes the clip with exactly this id and returns what is
// left. An unknown id leaves the collection unchanged; it is saved anyway.
func (s *NoteService) DeleteClip(ctx context.Context, id string) ([]types.Clip, error) {
	s.mu.Lock()
	clips := s.store.Load(ctx)
	remaining := make([]types.Clip, 0, len(clips))
	for _, clip := range clips {
		if clip.ID != id {
			remaining = append(remaining, clip)
		}
	}
	err := s.save(ctx, "DeleteClip", remaining)
	s.mu.Unlock()

	s.metrics.Delete(len(clips) - len(remaining))
	s.render(remaining)
	return remaining, err
}

// SetFavorite marks or unmarks one clip
func (s *NoteService) SetFavorite(ctx context.Context, id string, favorite bool) (types.Clip, error) {
	return s.update(ctx, "SetFavorite", id, func(c *types.Clip) {
		c.SetFavorite(favorite)
	})
}

// SetTags replaces the tags of one clip
func (s *NoteService) SetTags(ctx context.Context, id string, tags []string) (types.Clip, error) {
	return s.update(ctx, "SetTags", id, func(c *types.Clip) {
		c.SetTags(tags)
	})
}

func (s *NoteService) update(ctx context.Context, op, id string, mutate func(*types.Clip)) (types.Clip, error) {
	s.mu.Lock()
	clips := s.store.Load(ctx)
	index := -1
	for i := range clips {
		if clips[i].ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		s.mu.Unlock()
		return types.Clip{}, &NoteError{
			Op:      op,
			Kind:    KindNotFound,
			Message: fmt.Sprintf("no clip found with id: %s", id),
		}
	}

	mutate(&clips[index])
	err := s.save(ctx, op, clips)
	s.mu.Unlock()

	s.render(clips)
	return clips[index], err
}

// Clear removes every clip
func (s *NoteService) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.save(ctx, "Clear", []types.Clip{})
	s.mu.Unlock()

	s.render([]types.Clip{})
	return err
}

// Export serializes the full collection. An empty collection is refused.
func (s *NoteService) Export(ctx context.Context) (*transfer.Document, error) {
	clips := s.List(ctx)

	doc, err := transfer.Export(clips, s.now())
	if errors.Is(err, transfer.ErrNothingToExport) {
		return nil, &NoteError{
			Op:      "Export",
			Kind:    KindNothingToExport,
			Message: "no clips available to export",
			Err:     err,
		}
	}
	if err != nil {
		return nil, &NoteError{
			Op:      "Export",
			Kind:    KindInvalidInput,
			Message: "failed to encode clips",
			Err:     err,
		}
	}

	s.metrics.Export()
	s.logger.Info("Exported clips", zap.String("file", doc.Name), zap.Int("count", doc.Count))
	return doc, nil
}

// ImportPath opens the file at path and imports it like ImportFile.
// The name is checked before the file is opened.
func (s *NoteService) ImportPath(ctx context.Context, path string) (*ImportResult, error) {
	name := filepath.Base(path)
	if err := transfer.CheckFileName(name); err != nil {
		return nil, fileTypeError(err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, importReadError(err)
	}
	return s.ImportFile(ctx, name, file)
}

// ImportFile merges the clips in file ahead of the existing collection.
// file is closed on every path. Nothing is written unless the whole
// payload is a valid array of clip records.
func (s *NoteService) ImportFile(ctx context.Context, name string, file io.ReadCloser) (*ImportResult, error) {
	defer file.Close()

	if err := transfer.CheckFileName(name); err != nil {
		return nil, fileTypeError(err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, importReadError(err)
	}

	return s.Import(ctx, data)
}

func fileTypeError(err error) *NoteError {
	return &NoteError{
		Op:      "Import",
		Kind:    KindFileType,
		Message: "please select a JSON file",
		Err:     err,
	}
}

func importReadError(err error) *NoteError {
	return &NoteError{
		Op:      "Import",
		Kind:    KindImportRead,
		Message: "error reading file",
		Err:     err,
	}
}

// Import merges an already-read import payload
func (s *NoteService) Import(ctx context.Context, data []byte) (*ImportResult, error) {
	decoded, err := transfer.Decode(data)
	if err != nil {
		s.logger.Warn("Rejected import", zap.Error(err))
		return nil, &NoteError{
			Op:      "Import",
			Kind:    KindImportFormat,
			Message: "payload rejected",
			Err:     err,
		}
	}

	s.mu.Lock()
	existing := s.store.Load(ctx)
	imported := transfer.Normalize(decoded, existing, s.now())
	merged := transfer.Merge(imported, existing)
	err = s.save(ctx, "Import", merged)
	s.mu.Unlock()

	s.metrics.Import(len(imported))
	s.render(merged)
	s.logger.Info("Imported clips", zap.Int("count", len(imported)), zap.Int("total", len(merged)))
	return &ImportResult{Count: len(imported), Clips: merged}, err
}
