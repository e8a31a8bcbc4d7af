package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"quicknotes/internal/notify"
	"quicknotes/internal/service"
	"quicknotes/pkg/types"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxImportSize = 32 << 20 // 32MB

type Server struct {
	notes    *service.NoteService
	notifier notify.Notifier
	hub      *Hub
	srv      *http.Server
	pid      *pidFile
	logger   *zap.Logger
	config   Config
}

type Config struct {
	Port    int
	DataDir string              // Where the PID file lives; empty disables it
	Metrics prometheus.Gatherer // Served on /metrics when set
}

// New creates a server over notes. Notifications produced by requests go to
// notifier and to every websocket client; the hub also renders the collection
// to websocket clients after every change.
func New(notes *service.NoteService, notifier notify.Notifier, logger *zap.Logger, config Config) *Server {
	hub := newHub(logger)
	go hub.run()
	notes.RegisterHandler(hub)

	multi := &notify.Multi{}
	if notifier != nil {
		multi.Add(notifier)
	}
	multi.Add(hub)

	return &Server{
		notes:    notes,
		notifier: multi,
		hub:      hub,
		logger:   logger.Named("server"),
		config:   config,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.serveWs)
	if s.config.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Metrics, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/status", s.handleStatus)
		r.Route("/api", func(r chi.Router) {
			r.Post("/capture", s.handleCapture)
			r.Get("/export", s.handleExport)
			r.Post("/import", s.handleImport)

			r.Route("/clips", func(r chi.Router) {
				r.Get("/", s.handleListClips)
				r.Post("/", s.handleAddClip)
				r.Delete("/", s.handleClearClips)
				r.Get("/{id}", s.handleGetClip)
				r.Delete("/{id}", s.handleDeleteClip)
				r.Put("/{id}/favorite", s.handleSetFavorite)
				r.Put("/{id}/tags", s.handleSetTags)
			})
		})
	})

	return r
}

func (s *Server) Start() error {
	if s.config.DataDir != "" {
		pid, err := newPIDFile(s.config.DataDir)
		if err != nil {
			return err
		}
		if running, err := pid.read(); err == nil && running != 0 && isRunning(running) {
			return fmt.Errorf("server already running with pid %d", running)
		}
		if err := pid.write(); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		s.pid = pid
	}

	handler := s.Handler()

	// Try different addresses if one fails
	addresses := []string{
		fmt.Sprintf("localhost:%d", s.config.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Port),
	}

	var lastErr error
	for _, addr := range addresses {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			s.logger.Warn("Failed to listen", zap.String("addr", addr), zap.Error(err))
			continue
		}

		s.srv = &http.Server{
			Addr:    addr,
			Handler: handler,
		}
		go func() {
			if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server error", zap.String("addr", addr), zap.Error(err))
			}
		}()

		s.logger.Info("Server started", zap.String("addr", addr))
		return nil
	}

	s.removePID()
	return fmt.Errorf("failed to start server on any address: %v", lastErr)
}

func (s *Server) Stop() error {
	defer s.removePID()
	s.hub.stop()

	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) removePID() {
	if s.pid == nil {
		return
	}
	if err := s.pid.remove(); err != nil {
		s.logger.Warn("Failed to remove PID file", zap.Error(err))
	}
	s.pid = nil
}

// Notify sends a notification to the configured notifier and websocket clients
func (s *Server) Notify(n notify.Notification) {
	s.notifier.Notify(n)
}

type response struct {
	Notification *notify.Notification `json:"notification,omitempty"`
	Clip         *types.Clip          `json:"clip,omitempty"`
	Clips        []types.Clip         `json:"clips,omitempty"`
	Count        *int                 `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an operation error to an HTTP status
func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindStorageWrite:
		return http.StatusInsufficientStorage
	case service.KindFileType:
		return http.StatusUnsupportedMediaType
	case service.KindImportFormat, service.KindImportRead, service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindNotFound, service.KindNothingToExport:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail notifies about err and writes it, with any in-memory result, to w
func (s *Server) fail(w http.ResponseWriter, err error, body response) {
	n := notify.FromError(err)
	s.Notify(n)
	body.Notification = &n
	writeJSON(w, statusFor(err), body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	addr := ""
	if s.srv != nil {
		addr = s.srv.Addr
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
		"addr":   addr,
	})
}

func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	var clips []types.Clip
	if r.URL.Query().Has("q") {
		clips = s.notes.Filter(r.Context(), r.URL.Query().Get("q"))
	} else {
		clips = s.notes.List(r.Context())
	}

	// Get limit and offset from query params
	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if offset > len(clips) {
		offset = len(clips)
	}
	clips = clips[offset:]
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed < len(clips) {
			clips = clips[:parsed]
		}
	}

	writeJSON(w, http.StatusOK, clips)
}

func (s *Server) handleGetClip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, clip := range s.notes.List(r.Context()) {
		if clip.ID == id {
			writeJSON(w, http.StatusOK, clip)
			return
		}
	}
	http.Error(w, "clip not found", http.StatusNotFound)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.notes.Capture(r.Context(), req.Text)
	body := response{Clip: res.Clip}
	if err != nil {
		s.fail(w, err, body)
		return
	}

	status := http.StatusOK
	if res.Status == service.CaptureSaved {
		status = http.StatusCreated
	}
	if n, ok := notify.ForCapture(res, nil); ok {
		s.Notify(n)
		body.Notification = &n
	}
	writeJSON(w, status, body)
}

func (s *Server) handleAddClip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	clip, err := s.notes.AddClip(r.Context(), req.Content, req.Tags)
	if err != nil {
		body := response{}
		if clip.ID != "" {
			body.Clip = &clip
		}
		s.fail(w, err, body)
		return
	}
	writeJSON(w, http.StatusCreated, response{Clip: &clip})
}

func (s *Server) handleDeleteClip(w http.ResponseWriter, r *http.Request) {
	clips, err := s.notes.DeleteClip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err, response{Clips: clips})
		return
	}
	writeJSON(w, http.StatusOK, response{Clips: clips})
}

func (s *Server) handleClearClips(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.Clear(r.Context()); err != nil {
		s.fail(w, err, response{})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsFavorite bool `json:"isFavorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	clip, err := s.notes.SetFavorite(r.Context(), chi.URLParam(r, "id"), req.IsFavorite)
	s.writeUpdate(w, clip, err)
}

func (s *Server) handleSetTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	clip, err := s.notes.SetTags(r.Context(), chi.URLParam(r, "id"), req.Tags)
	s.writeUpdate(w, clip, err)
}

func (s *Server) writeUpdate(w http.ResponseWriter, clip types.Clip, err error) {
	if err != nil {
		body := response{}
		if clip.ID != "" {
			body.Clip = &clip
		}
		s.fail(w, err, body)
		return
	}
	writeJSON(w, http.StatusOK, response{Clip: &clip})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.notes.Export(r.Context())
	if err != nil {
		s.fail(w, err, response{})
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, &service.NoteError{
			Op:      "Import",
			Kind:    service.KindImportRead,
			Message: "no file uploaded",
			Err:     err,
		}, response{})
		return
	}

	res, err := s.notes.ImportFile(r.Context(), header.Filename, file)
	if err != nil {
		body := response{}
		if res != nil {
			body.Clips = res.Clips
			body.Count = &res.Count
		}
		s.fail(w, err, body)
		return
	}

	n := notify.ForImport(res, nil)
	s.Notify(n)
	writeJSON(w, http.StatusOK, response{Notification: &n, Clips: res.Clips, Count: &res.Count})
}
