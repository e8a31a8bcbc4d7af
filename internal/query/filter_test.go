package query

import (
	"quicknotes/pkg/types"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleClips() []types.Clip {
	return []types.Clip{
		{ID: "1", Content: "Buy milk", Tags: []string{"home"}},
		{ID: "2", Content: "Call Bob", Tags: []string{}},
	}
}

func ids(clips []types.Clip) []string {
	out := make([]string, 0, len(clips))
	for _, c := range clips {
		out = append(out, c.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		term string
		want []string
	}{
		{"content match ignores case", "bob", []string{"2"}},
		{"tag match", "home", []string{"1"}},
		{"tag substring upper case", "HOM", []string{"1"}},
		{"empty term", "", []string{"1", "2"}},
		{"whitespace term", "   ", []string{"1", "2"}},
		{"term is trimmed", "  milk ", []string{"1"}},
		{"no match", "zebra", []string{}},
		{"shared letter", "l", []string{"1", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(sampleClips(), tt.term)))
		})
	}
}

func TestFilter_DoesNotAliasInput(t *testing.T) {
	clips := sampleClips()

	out := Filter(clips, "")
	out[0].Content = "changed"

	assert.Equal(t, "Buy milk", clips[0].Content)
}

func TestFilter_NilInput(t *testing.T) {
	out := Filter(nil, "x")
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFavorites(t *testing.T) {
	clips := sampleClips()
	clips[1].IsFavorite = true

	assert.Equal(t, []string{"2"}, ids(Favorites(clips)))
}
