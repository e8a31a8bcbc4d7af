package obsidian

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"quicknotes/pkg/types"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FolderName is the vault subfolder that holds the daily notes
const FolderName = "QuickNotes"

const dayLayout = "2006-01-02"

// Source provides the collection to mirror
type Source interface {
	List(ctx context.Context) []types.Clip
}

// SyncService mirrors the clip collection into an Obsidian vault as one
// markdown note per day.
type SyncService struct {
	source     Source
	vaultPath  string
	syncTicker *time.Ticker
	done       chan struct{}
	stopOnce   sync.Once
	syncMu     sync.Mutex
	logger     *zap.Logger
}

// Config holds configuration for the Obsidian sync service
type Config struct {
	VaultPath    string
	SyncInterval time.Duration
}

// New creates a new Obsidian sync service
func New(source Source, config Config, logger *zap.Logger) (*SyncService, error) {
	if config.VaultPath == "" {
		return nil, fmt.Errorf("vault path is required")
	}

	// Verify vault path exists
	if _, err := os.Stat(config.VaultPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vault path does not exist: %s", config.VaultPath)
	}

	if config.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive, got: %v", config.SyncInterval)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SyncService{
		source:     source,
		vaultPath:  config.VaultPath,
		syncTicker: time.NewTicker(config.SyncInterval),
		done:       make(chan struct{}),
		logger:     logger.Named("obsidian"),
	}, nil
}

// Start performs an initial sync and then syncs on every tick
func (s *SyncService) Start(ctx context.Context) error {
	s.logger.Info("Starting Obsidian sync service", zap.String("vault", s.vaultPath))

	if _, err := s.Sync(ctx); err != nil {
		s.logger.Warn("Initial sync error", zap.Error(err))
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-s.syncTicker.C:
				if _, err := s.Sync(ctx); err != nil {
					s.logger.Warn("Error during sync", zap.Error(err))
				}
			}
		}
	}()

	return nil
}

// Stop stops the sync service
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.syncTicker.Stop()
		close(s.done)
	})
	s.logger.Debug("Obsidian sync service stopped")
}

// Sync rewrites the daily notes from the current collection. Notes whose
// content did not change are left alone and notes for days that no longer
// have clips are removed. It returns the number of files written.
func (s *SyncService) Sync(ctx context.Context) (int, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if _, err := os.Stat(s.vaultPath); err != nil {
		return 0, fmt.Errorf("vault path error: %w", err)
	}

	dir := filepath.Join(s.vaultPath, FolderName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	notes := RenderNotes(s.source.List(ctx))

	written := 0
	for day, content := range notes {
		path := filepath.Join(dir, day+".md")
		if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
			continue
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return written, fmt.Errorf("failed to write note %s: %w", path, err)
		}
		written++
	}

	if err := s.removeStale(dir, notes); err != nil {
		return written, err
	}

	s.logger.Debug("Sync completed", zap.Int("days", len(notes)), zap.Int("written", written))
	return written, nil
}

// removeStale deletes daily notes for days with no clips left. Files that
// are not named like a daily note are kept.
func (s *SyncService) removeStale(dir string, notes map[string][]byte) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list notes: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		day := strings.TrimSuffix(name, ".md")
		if _, err := time.Parse(dayLayout, day); err != nil {
			continue
		}
		if _, ok := notes[day]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale note: %w", err)
		}
	}
	return nil
}

// RenderNotes groups clips by the day of their timestamp and renders one
// markdown document per day. Within a day, entries keep collection order.
// Clips with an unparseable timestamp are filed under "undated".
func RenderNotes(clips []types.Clip) map[string][]byte {
	byDay := make(map[string][]types.Clip)
	for _, clip := range clips {
		day := "undated"
		if t, err := time.Parse(types.TimestampLayout, clip.Timestamp); err == nil {
			day = t.Format(dayLayout)
		}
		byDay[day] = append(byDay[day], clip)
	}

	notes := make(map[string][]byte, len(byDay))
	for day, dayClips := range byDay {
		notes[day] = renderDay(day, dayClips)
	}
	return notes
}

func renderDay(day string, clips []types.Clip) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", day)

	for _, clip := range clips {
		heading := clip.Timestamp
		if t, err := time.Parse(types.TimestampLayout, clip.Timestamp); err == nil {
			heading = t.Format("15:04:05")
		}

		fmt.Fprintf(&buf, "\n## %s\n---\nid: %s\ntags: [quicknotes%s]\nfavorite: %t\n---\n\n%s\n",
			heading,
			clip.ID,
			formatTags(clip.Tags),
			clip.IsFavorite,
			clip.Content)
	}
	return buf.Bytes()
}

// formatTags formats tags for frontmatter
func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	formattedTags := make([]string, 0, len(tags))
	for _, tag := range tags {
		// Clean tag: remove spaces
		cleanTag := strings.Map(func(r rune) rune {
			if r == ' ' {
				return '-'
			}
			return r
		}, tag)
		formattedTags = append(formattedTags, cleanTag)
	}
	sort.Strings(formattedTags)

	return ", " + strings.Join(formattedTags, ", ")
}
