//go:build !darwin

package clipboard

import (
	"time"

	"go.uber.org/zap"
)

type noopMonitor struct {
	logger *zap.Logger
}

// NewMonitor returns the system pasteboard monitor. The pasteboard is only
// observable on macOS; elsewhere the monitor never fires.
func NewMonitor(interval time.Duration, logger *zap.Logger) Monitor {
	return &noopMonitor{logger: logger.Named("monitor")}
}

func (m *noopMonitor) Start() error {
	m.logger.Info("System clipboard monitoring is not available on this platform")
	return nil
}

func (m *noopMonitor) Stop() error {
	return nil
}

func (m *noopMonitor) OnChange(handler func(string)) {}
