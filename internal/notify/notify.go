// Package notify turns operation outcomes into user-visible notifications.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"quicknotes/internal/service"
	"quicknotes/internal/storage"
	"sync"

	"go.uber.org/zap"
)

// Severity of a notification
type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Notification is one user-visible outcome
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Notifier delivers notifications. Delivery is fire-and-forget.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// FromError maps an operation error to the notification shown for it
func FromError(err error) Notification {
	switch service.KindOf(err) {
	case service.KindStorageWrite:
		var writeErr *storage.WriteError
		if errors.As(err, &writeErr) && writeErr.Err != nil {
			return Notification{Message: "Error saving clips: " + writeErr.Err.Error(), Severity: Error}
		}
		return Notification{Message: "Error saving clips", Severity: Error}
	case service.KindImportFormat:
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return Notification{Message: "Import failed: " + syntaxErr.Error(), Severity: Error}
		}
		return Notification{Message: "Import failed: Invalid file format: Expected an array of clips", Severity: Error}
	case service.KindImportRead:
		return Notification{Message: "Error reading file. Please try again.", Severity: Error}
	case service.KindFileType:
		return Notification{Message: "Please select a JSON file", Severity: Warning}
	case service.KindNothingToExport:
		return Notification{Message: "No clips available to export!", Severity: Warning}
	case service.KindNotFound:
		return Notification{Message: "Clip not found", Severity: Warning}
	case service.KindInvalidInput:
		return Notification{Message: "Nothing to save", Severity: Warning}
	}
	if err == nil {
		return Notification{Message: "Done", Severity: Success}
	}
	return Notification{Message: "Operation failed: " + err.Error(), Severity: Error}
}

// ForCapture maps a capture outcome. ok is false for ignored captures,
// which produce no notification.
func ForCapture(res service.CaptureResult, err error) (Notification, bool) {
	if err != nil {
		return FromError(err), true
	}
	switch res.Status {
	case service.CaptureSaved:
		return Notification{Message: "Clip saved!", Severity: Success}, true
	case service.CaptureDuplicate:
		return Notification{Message: "Clip already exists", Severity: Info}, true
	}
	return Notification{}, false
}

// ForImport maps an import outcome
func ForImport(res *service.ImportResult, err error) Notification {
	if err != nil {
		return FromError(err)
	}
	return Notification{
		Message:  fmt.Sprintf("Successfully imported %d clip(s)", res.Count),
		Severity: Success,
	}
}

// Multi fans a notification out to several notifiers
type Multi struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// Add registers another notifier
func (m *Multi) Add(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Notify implements Notifier
func (m *Multi) Notify(n Notification) {
	m.mu.RLock()
	notifiers := m.notifiers
	m.mu.RUnlock()

	for _, notifier := range notifiers {
		notifier.Notify(n)
	}
}

// LogNotifier writes notifications to a zap logger
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs through logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify implements Notifier
func (l *LogNotifier) Notify(n Notification) {
	fields := []zap.Field{zap.String("severity", string(n.Severity))}
	switch n.Severity {
	case Error:
		l.logger.Error(n.Message, fields...)
	case Warning:
		l.logger.Warn(n.Message, fields...)
	default:
		l.logger.Info(n.Message, fields...)
	}
}

// WriterNotifier prints one line per notification, for terminal use
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier creates a notifier printing to w
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Notify implements Notifier
func (p *WriterNotifier) Notify(n Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", marker(n.Severity), n.Message)
}

func marker(severity Severity) string {
	switch severity {
	case Success:
		return "✓"
	case Error:
		return "✗"
	case Warning:
		return "!"
	}
	return "·"
}
