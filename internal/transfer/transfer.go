// Package transfer turns clip collections into portable JSON documents and back.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"quicknotes/pkg/types"
	"strings"
	"time"
)

const (
	// FileExtension is the only extension accepted for import
	FileExtension = ".json"

	filePrefix = "quicknotes-export-"
)

var (
	ErrNothingToExport = errors.New("no clips available to export")
	ErrNotJSONFile     = errors.New("please select a JSON file")
	ErrInvalidFormat   = errors.New("invalid file format: expected an array of clips")
)

// Document is an export ready to be handed to a download mechanism
type Document struct {
	Name  string
	Data  []byte
	Count int
}

// ExportFileName names an export taken at now
func ExportFileName(now time.Time) string {
	return filePrefix + now.UTC().Format("2006-01-02") + FileExtension
}

// Export serializes the full collection as pretty-printed JSON
func Export(clips []types.Clip, now time.Time) (*Document, error) {
	if len(clips) == 0 {
		return nil, ErrNothingToExport
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(clips); err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	return &Document{
		Name:  ExportFileName(now),
		Data:  bytes.TrimRight(buf.Bytes(), "\n"),
		Count: len(clips),
	}, nil
}

// CheckFileName rejects files whose name does not end in .json
func CheckFileName(name string) error {
	if !strings.HasSuffix(name, FileExtension) {
		return fmt.Errorf("%w: %q", ErrNotJSONFile, name)
	}
	return nil
}

// Decode parses an import payload. The payload must be a JSON array of
// objects; anything else fails with ErrInvalidFormat and nothing is returned.
// Fields inside each object are taken as they come.
func Decode(data []byte) ([]types.Clip, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if elems == nil {
		return nil, ErrInvalidFormat
	}

	clips := make([]types.Clip, len(elems))
	for i, elem := range elems {
		if err := json.Unmarshal(elem, &clips[i]); err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrInvalidFormat, i, err)
		}
	}
	return clips, nil
}

// Normalize assigns ids and timestamps where the imported records lack them.
// An id already taken by existing or by an earlier imported record is
// replaced so ids stay unique across the merged collection.
func Normalize(imported, existing []types.Clip, now time.Time) []types.Clip {
	taken := make(map[string]bool, len(existing)+len(imported))
	for _, clip := range existing {
		taken[clip.ID] = true
	}

	out := make([]types.Clip, len(imported))
	for i, clip := range imported {
		clip.Normalize(now)
		for taken[clip.ID] {
			clip.ID = types.NewID()
		}
		taken[clip.ID] = true
		out[i] = clip
	}
	return out
}

// Merge puts the imported batch, in its own order, ahead of the existing clips
func Merge(imported, existing []types.Clip) []types.Clip {
	merged := make([]types.Clip, 0, len(imported)+len(existing))
	merged = append(merged, imported...)
	merged = append(merged, existing...)
	return merged
}
