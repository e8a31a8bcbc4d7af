package clipboard

import (
	"runtime"
	"sync"
	"time"

	"github.com/progrium/darwinkit/macos/appkit"
	"go.uber.org/zap"
)

const plainTextType = "public.utf8-plain-text"

type DarwinMonitor struct {
	handler     func(string)
	pasteboard  appkit.Pasteboard
	changeCount int
	interval    time.Duration
	logger      *zap.Logger
	mutex       sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
}

func init() {
	// Ensure we're on the main thread for AppKit operations
	runtime.LockOSThread()
}

// NewMonitor returns a monitor polling the general pasteboard every interval
func NewMonitor(interval time.Duration, logger *zap.Logger) Monitor {
	// Ensure we're on the main thread for AppKit operations
	runtime.LockOSThread()

	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &DarwinMonitor{
		pasteboard: appkit.Pasteboard_GeneralPasteboard(),
		interval:   interval,
		logger:     logger.Named("monitor"),
		stopChan:   make(chan struct{}),
	}
}

func (m *DarwinMonitor) Start() error {
	m.mutex.Lock()
	m.changeCount = m.pasteboard.ChangeCount()
	m.mutex.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.checkForChanges()
			case <-m.stopChan:
				return
			}
		}
	}()

	m.logger.Info("Watching pasteboard", zap.Duration("interval", m.interval))
	return nil
}

func (m *DarwinMonitor) Stop() error {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	return nil
}

func (m *DarwinMonitor) OnChange(handler func(string)) {
	m.mutex.Lock()
	m.handler = handler
	m.mutex.Unlock()
}

func (m *DarwinMonitor) checkForChanges() {
	m.mutex.Lock()
	currentCount := m.pasteboard.ChangeCount()
	previousCount := m.changeCount
	m.changeCount = currentCount
	handler := m.handler
	m.mutex.Unlock()

	if currentCount == previousCount {
		return
	}
	m.logger.Debug("Clipboard change detected",
		zap.Int("from", previousCount), zap.Int("to", currentCount))

	// Only plain text is captured; images and file promises are skipped
	text := m.pasteboard.StringForType(appkit.PasteboardType(plainTextType))
	if text == "" {
		m.logger.Debug("Pasteboard change carries no plain text")
		return
	}

	if handler != nil {
		handler(text)
	}
}
