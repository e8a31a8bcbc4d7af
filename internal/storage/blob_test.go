package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"quicknotes/internal/storage"
	"quicknotes/internal/storage/memory"
	"quicknotes/pkg/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type failingKV struct {
	*memory.Storage
	setErr error
	getErr error
}

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Storage.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Storage.Set(ctx, key, value)
}

func TestBlobStore_LoadMissingIsEmpty(t *testing.T) {
	store := storage.NewBlobStore(memory.New(), storage.Config{}, nil)

	clips := store.Load(context.Background())
	assert.NotNil(t, clips)
	assert.Empty(t, clips)
	assert.Equal(t, storage.DefaultKey, store.Key())
}

func TestBlobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewBlobStore(memory.New(), storage.Config{Key: "custom"}, nil)

	now := time.Date(2024, 2, 2, 8, 30, 0, 0, time.UTC)
	extra := types.Clip{
		ID:        "imported-1",
		Content:   "from elsewhere",
		Tags:      []string{"a", "b"},
		Timestamp: "2023-01-01T00:00:00.000Z",
		Extra:     map[string]json.RawMessage{"source": json.RawMessage(`"phone"`)},
	}
	clips := []types.Clip{
		types.NewClipAt("newest", nil, now),
		extra,
		types.NewClipAt("oldest", []string{"x"}, now.Add(-time.Hour)),
	}

	require.NoError(t, store.Save(ctx, clips))
	assert.Equal(t, clips, store.Load(ctx))

	// Saving what was loaded changes nothing
	require.NoError(t, store.Save(ctx, store.Load(ctx)))
	assert.Equal(t, clips, store.Load(ctx))
}

func TestBlobStore_SaveNilWritesEmptyArray(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	store := storage.NewBlobStore(kv, storage.Config{}, nil)

	require.NoError(t, store.Save(ctx, nil))

	raw, ok, err := kv.Get(ctx, storage.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(raw))
}

func TestBlobStore_CorruptDataIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"object", `{"a":1}`},
		{"array of scalars", `[1,2,3]`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := memory.New()
			require.NoError(t, kv.Set(ctx, storage.DefaultKey, []byte(tt.raw)))

			core, logs := observer.New(zapcore.DebugLevel)
			store := storage.NewBlobStore(kv, storage.Config{}, zap.New(core))

			clips := store.Load(ctx)
			assert.NotNil(t, clips)
			assert.Empty(t, clips)
			if tt.raw != "null" {
				assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
			}
		})
	}
}

func TestBlobStore_ReadFailureIsEmpty(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	kv := &failingKV{Storage: memory.New(), getErr: errors.New("disk gone")}
	store := storage.NewBlobStore(kv, storage.Config{}, zap.New(core))

	assert.Empty(t, store.Load(context.Background()))
	require.Equal(t, 1, logs.FilterMessage("Error loading clips").Len())
}

func TestBlobStore_WriteFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("quota exceeded")
	kv := &failingKV{Storage: memory.New(), setErr: cause}
	store := storage.NewBlobStore(kv, storage.Config{}, nil)

	err := store.Save(ctx, []types.Clip{types.NewClip("x", nil)})
	require.Error(t, err)

	var writeErr *storage.WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, storage.DefaultKey, writeErr.Key)
	assert.ErrorIs(t, err, cause)
}

func TestBlobStore_Quota(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	store := storage.NewBlobStore(kv, storage.Config{MaxBlobSize: 64}, nil)

	require.NoError(t, store.Save(ctx, []types.Clip{}))

	err := store.Save(ctx, []types.Clip{types.NewClip("this content pushes the blob past the quota", nil)})
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)

	// The previous value is untouched
	raw, _, _ := kv.Get(ctx, storage.DefaultKey)
	assert.Equal(t, "[]", string(raw))
}
