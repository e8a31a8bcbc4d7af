package clipboard

import (
	"bufio"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Monitor delivers copied text to a handler. It does no filtering: empty
// and duplicate strings are the capture flow's concern.
type Monitor interface {
	Start() error
	Stop() error
	OnChange(handler func(text string))
}

// StreamMonitor treats every line read from r as one copy event. It lets
// tools like `wl-paste --watch` or `xclip` loops feed the capture flow.
type StreamMonitor struct {
	reader  io.Reader
	logger  *zap.Logger
	handler func(string)
	mutex   sync.RWMutex
	done    chan struct{}
}

// NewStreamMonitor creates a monitor reading copy events from r
func NewStreamMonitor(r io.Reader, logger *zap.Logger) *StreamMonitor {
	return &StreamMonitor{
		reader: r,
		logger: logger.Named("stream-monitor"),
		done:   make(chan struct{}),
	}
}

func (m *StreamMonitor) OnChange(handler func(string)) {
	m.mutex.Lock()
	m.handler = handler
	m.mutex.Unlock()
}

func (m *StreamMonitor) Start() error {
	go func() {
		defer close(m.done)

		scanner := bufio.NewScanner(m.reader)
		scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			m.mutex.RLock()
			handler := m.handler
			m.mutex.RUnlock()

			if handler != nil {
				handler(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			m.logger.Warn("Copy stream ended with error", zap.Error(err))
		}
	}()
	return nil
}

func (m *StreamMonitor) Stop() error {
	if closer, ok := m.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Done is closed once the stream has been fully consumed
func (m *StreamMonitor) Done() <-chan struct{} {
	return m.done
}
