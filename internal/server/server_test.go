package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"quicknotes/internal/metrics"
	"quicknotes/internal/notify"
	"quicknotes/internal/service"
	"quicknotes/internal/storage"
	"quicknotes/internal/storage/memory"
	"quicknotes/pkg/types"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collected struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (c *collected) Notify(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
}

func (c *collected) last() notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return notify.Notification{}
	}
	return c.items[len(c.items)-1]
}

func setupServer(t *testing.T) (*Server, *httptest.Server, *collected) {
	t.Helper()

	store := storage.NewBlobStore(memory.New(), storage.Config{}, zap.NewNop())
	registry := prometheus.NewRegistry()
	notes := service.New(store, zap.NewNop(), service.WithMetrics(metrics.New(registry)))

	notes.RegisterHandler(service.RenderFunc(func([]types.Clip) {}))
	sink := &collected{}
	srv := New(notes, sink, zap.NewNop(), Config{Metrics: registry})
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return srv, ts, sink
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) response {
	t.Helper()
	defer resp.Body.Close()
	var body response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestStatus(t *testing.T) {
	_, ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestCapture(t *testing.T) {
	_, ts, sink := setupServer(t)

	resp := postJSON(t, ts.URL+"/api/capture", map[string]string{"text": "  hello  "})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeResponse(t, resp)
	require.NotNil(t, body.Clip)
	assert.Equal(t, "hello", body.Clip.Content)
	require.NotNil(t, body.Notification)
	assert.Equal(t, "Clip saved!", body.Notification.Message)
	assert.Equal(t, "Clip saved!", sink.last().Message)

	resp = postJSON(t, ts.URL+"/api/capture", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeResponse(t, resp)
	require.NotNil(t, body.Notification)
	assert.Equal(t, "Clip already exists", body.Notification.Message)
	assert.Equal(t, notify.Info, body.Notification.Severity)
}

func TestCapture_Whitespace(t *testing.T) {
	_, ts, _ := setupServer(t)

	resp := postJSON(t, ts.URL+"/api/capture", map[string]string{"text": " \n\t "})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.Nil(t, body.Notification)
	assert.Nil(t, body.Clip)
}

func TestClipLifecycle(t *testing.T) {
	_, ts, _ := setupServer(t)

	resp := postJSON(t, ts.URL+"/api/clips", map[string]interface{}{
		"content": "Buy milk",
		"tags":    []string{"groceries"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeResponse(t, resp).Clip
	require.NotNil(t, created)

	postJSON(t, ts.URL+"/api/clips", map[string]interface{}{"content": "Call Bob"}).Body.Close()

	// Search by tag
	resp, err := http.Get(ts.URL + "/api/clips?q=GROC")
	require.NoError(t, err)
	var filtered []types.Clip
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&filtered))
	resp.Body.Close()
	require.Len(t, filtered, 1)
	assert.Equal(t, "Buy milk", filtered[0].Content)

	// Favorite
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/clips/"+created.ID+"/favorite",
		strings.NewReader(`{"isFavorite":true}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeResponse(t, resp).Clip.IsFavorite)

	// Tags
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/clips/"+created.ID+"/tags",
		strings.NewReader(`{"tags":["a","b"]}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, decodeResponse(t, resp).Clip.Tags)

	// Get
	resp, err = http.Get(ts.URL + "/api/clips/" + created.ID)
	require.NoError(t, err)
	var fetched types.Clip
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	resp.Body.Close()
	assert.True(t, fetched.IsFavorite)

	// Delete
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/clips/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	remaining := decodeResponse(t, resp).Clips
	require.Len(t, remaining, 1)
	assert.Equal(t, "Call Bob", remaining[0].Content)

	resp, err = http.Get(ts.URL + "/api/clips/" + created.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListClips_Pagination(t *testing.T) {
	_, ts, _ := setupServer(t)

	for i := 0; i < 5; i++ {
		postJSON(t, ts.URL+"/api/clips", map[string]string{"content": "clip " + strconv.Itoa(i)}).Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/clips?offset=1&limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	var clips []types.Clip
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&clips))
	require.Len(t, clips, 2)
	assert.Equal(t, "clip 3", clips[0].Content)
	assert.Equal(t, "clip 2", clips[1].Content)
}

func TestSetFavorite_NotFound(t *testing.T) {
	_, ts, sink := setupServer(t)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/clips/missing/favorite",
		strings.NewReader(`{"isFavorite":true}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "Clip not found", sink.last().Message)
}

func TestExport(t *testing.T) {
	_, ts, sink := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/export")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "No clips available to export!", sink.last().Message)
	assert.Equal(t, notify.Warning, sink.last().Severity)

	postJSON(t, ts.URL+"/api/clips", map[string]string{"content": "note"}).Body.Close()

	resp, err = http.Get(ts.URL + "/api/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "quicknotes-export-")

	var clips []types.Clip
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&clips))
	require.Len(t, clips, 1)
	assert.Equal(t, "note", clips[0].Content)
}

func uploadFile(t *testing.T, url, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func TestImport(t *testing.T) {
	_, ts, sink := setupServer(t)

	postJSON(t, ts.URL+"/api/clips", map[string]string{"content": "existing"}).Body.Close()

	resp := uploadFile(t, ts.URL+"/api/import", "backup.json",
		`[{"id":"a","content":"one","tags":[],"isFavorite":false,"timestamp":"2024-01-01T00:00:00.000Z"},{"content":"two"}]`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeResponse(t, resp)
	require.NotNil(t, body.Count)
	assert.Equal(t, 2, *body.Count)
	require.Len(t, body.Clips, 3)
	assert.Equal(t, "one", body.Clips[0].Content)
	assert.Equal(t, "existing", body.Clips[2].Content)
	assert.Equal(t, "Successfully imported 2 clip(s)", sink.last().Message)
}

func TestImport_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		status   int
		expected string
	}{
		{"wrong extension", "notes.txt", `[]`, http.StatusUnsupportedMediaType, "Please select a JSON file"},
		{"object payload", "notes.json", `{"id":"1"}`, http.StatusBadRequest, "Import failed: Invalid file format: Expected an array of clips"},
		{"broken json", "notes.json", `[{`, http.StatusBadRequest, "Import failed: unexpected end of JSON input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts, sink := setupServer(t)

			resp := uploadFile(t, ts.URL+"/api/import", tt.file, tt.content)
			assert.Equal(t, tt.status, resp.StatusCode)
			resp.Body.Close()
			assert.Equal(t, tt.expected, sink.last().Message)

			resp, err := http.Get(ts.URL + "/api/clips")
			require.NoError(t, err)
			var clips []types.Clip
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&clips))
			resp.Body.Close()
			assert.Empty(t, clips)
		})
	}
}

func TestImport_NoFile(t *testing.T) {
	_, ts, sink := setupServer(t)

	resp, err := http.Post(ts.URL+"/api/import", "application/json", strings.NewReader(`[]`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Error reading file. Please try again.", sink.last().Message)
}

func TestClearClips(t *testing.T) {
	_, ts, _ := setupServer(t)

	postJSON(t, ts.URL+"/api/clips", map[string]string{"content": "x"}).Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/clips", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/clips")
	require.NoError(t, err)
	defer resp.Body.Close()
	var clips []types.Clip
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&clips))
	assert.Empty(t, clips)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts, _ := setupServer(t)

	postJSON(t, ts.URL+"/api/capture", map[string]string{"text": "counted"}).Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "quicknotes_captures_total")
}

func readMessage(t *testing.T, conn *websocket.Conn, kind string) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == kind {
			return msg
		}
	}
}

func TestWebSocket_BroadcastsChanges(t *testing.T) {
	_, ts, _ := setupServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readMessage(t, conn, MessageClips)
	assert.Empty(t, initial.Payload)

	postJSON(t, ts.URL+"/api/capture", map[string]string{"text": "live"}).Body.Close()

	msg := readMessage(t, conn, MessageClips)
	clips, ok := msg.Payload.([]interface{})
	require.True(t, ok)
	require.Len(t, clips, 1)
	assert.Equal(t, "live", clips[0].(map[string]interface{})["content"])

	note := readMessage(t, conn, MessageNotification)
	assert.Equal(t, "Clip saved!", note.Payload.(map[string]interface{})["message"])
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	_, ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_RenderAfterStop(t *testing.T) {
	hub := newHub(zap.NewNop())
	go hub.run()
	hub.stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Render(nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Render blocked after stop")
	}
	assert.Equal(t, 0, hub.clientCount())
}

func TestPIDFile(t *testing.T) {
	dir := t.TempDir()

	pid, err := newPIDFile(dir)
	require.NoError(t, err)

	got, err := pid.read()
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	require.NoError(t, pid.write())
	got, err = pid.read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	running, err := Running(dir)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), running)

	require.NoError(t, pid.remove())
	require.NoError(t, pid.remove())

	running, err = Running(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, running)
}

func TestPIDFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte("garbage"), 0644))

	_, err := Running(dir)
	assert.Error(t, err)
}

func TestStart_RefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()
	pid, err := newPIDFile(dir)
	require.NoError(t, err)
	require.NoError(t, pid.write())

	store := storage.NewBlobStore(memory.New(), storage.Config{}, zap.NewNop())
	srv := New(service.New(store, nil), nil, zap.NewNop(), Config{DataDir: dir})
	defer srv.Stop()

	err = srv.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	_, statErr := os.Stat(filepath.Join(dir, pidFileName))
	assert.NoError(t, statErr)
}
