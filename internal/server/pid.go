package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidFileName = "quicknotes.pid"

// pidFile manages the PID file for the server
type pidFile struct {
	path string
}

// newPIDFile creates a PID file manager rooted in dataDir
func newPIDFile(dataDir string) (*pidFile, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	return &pidFile{
		path: filepath.Join(dataDir, pidFileName),
	}, nil
}

// write writes the current process PID to the PID file
func (p *pidFile) write() error {
	pid := os.Getpid()
	return os.WriteFile(p.path, []byte(strconv.Itoa(pid)), 0644)
}

// read reads the PID from the PID file. A missing file reads as 0.
func (p *pidFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

// remove removes the PID file
func (p *pidFile) remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Running returns the PID of the server recorded in dataDir, or 0 when no
// server is running there.
func Running(dataDir string) (int, error) {
	p := &pidFile{path: filepath.Join(dataDir, pidFileName)}
	pid, err := p.read()
	if err != nil || pid == 0 {
		return 0, err
	}
	if !isRunning(pid) {
		return 0, nil
	}
	return pid, nil
}

// StopRunning signals the server recorded in dataDir to shut down. It
// returns the PID that was signalled, or 0 when none was running.
func StopRunning(dataDir string) (int, error) {
	pid, err := Running(dataDir)
	if err != nil || pid == 0 {
		return 0, err
	}
	if err := killProcess(pid); err != nil {
		return pid, err
	}
	return pid, nil
}

// isRunning checks if a process with the given PID is running
func isRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, FindProcess always succeeds, so we need to check if the process actually exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// killProcess attempts to kill a process with the given PID
func killProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	// First try SIGTERM for graceful shutdown
	if err := process.Signal(syscall.SIGTERM); err != nil {
		// If SIGTERM fails, force kill with SIGKILL
		if err := process.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
	}

	return nil
}
