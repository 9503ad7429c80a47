package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

type PIDManager struct {
	dir string
	cm  *ConfigManager
}

func NewPIDManager(cm *ConfigManager) (*PIDManager, error) {
	dataDir := GetAppPaths("").DataDir
	if dataDir == "" {
		dataDir = "."
	}

	return &PIDManager{
		dir: dataDir,
		cm:  cm,
	}, nil
}

func (p *PIDManager) pidFilePath() string {
	pidFileName := p.cm.GetConfigWithDefault("pid_path", "x402-gateway.pid")
	return filepath.Join(p.dir, pidFileName)
}

func (p *PIDManager) WritePID(pid int) error {
	path := p.pidFilePath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for PID file: %v", err)
	}

	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

func (p *PIDManager) ReadPID() (int, error) {
	data, err := os.ReadFile(p.pidFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.New("PID file does not exist - gateway is not running")
		}
		return 0, fmt.Errorf("failed to read PID file: %v", err)
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file contents: %v", err)
	}

	return pid, nil
}

func (p *PIDManager) RemovePIDFile() error {
	err := os.Remove(p.pidFilePath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsProcessRunning checks whether a process with the given PID is alive
func (p *PIDManager) IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes for existence without sending anything
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// StopProcess sends SIGTERM and falls back to SIGKILL after the grace period
func (p *PIDManager) StopProcess(pid int, gracePeriod time.Duration) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process %d not found: %v", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %v", pid, err)
	}

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !p.IsProcessRunning(pid) {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	return process.Kill()
}
