package clipboard

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreamMonitor(t *testing.T) {
	m := NewStreamMonitor(strings.NewReader("first\n\nsecond line\n"), zap.NewNop())

	var mu sync.Mutex
	var got []string
	m.OnChange(func(text string) {
		mu.Lock()
		got = append(got, text)
		mu.Unlock()
	})

	require.NoError(t, m.Start())
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream monitor did not finish")
	}
	require.NoError(t, m.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "", "second line"}, got)
}
