// Package query derives filtered views of a clip collection without touching storage.
package query

import (
	"quicknotes/pkg/types"
	"strings"
)

// Filter returns the clips whose content or any tag contains term,
// ignoring case. An empty (or all-space) term matches every clip.
// The result is always a new slice.
func Filter(clips []types.Clip, term string) []types.Clip {
	needle := strings.ToLower(strings.TrimSpace(term))

	out := make([]types.Clip, 0, len(clips))
	for _, clip := range clips {
		if needle == "" || Matches(clip, needle) {
			out = append(out, clip)
		}
	}
	return out
}

// Matches reports whether clip matches an already lower-cased needle
func Matches(clip types.Clip, needle string) bool {
	if strings.Contains(strings.ToLower(clip.Content), needle) {
		return true
	}
	for _, tag := range clip.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// Favorites returns only the clips marked as favorite
func Favorites(clips []types.Clip) []types.Clip {
	out := make([]types.Clip, 0)
	for _, clip := range clips {
		if clip.IsFavorite {
			out = append(out, clip)
		}
	}
	return out
}
