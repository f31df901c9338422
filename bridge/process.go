// Package bridge manages the lifecycle of external trading-agent
// subprocesses: materializing their configuration files, supervising the
// running processes, reconciling the trade/position logs they write back
// into the database, and monitoring liveness in the background.
package bridge

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ProcessState tags the lifecycle stage of a supervised process.
type ProcessState int

const (
	StateSpawning ProcessState = iota
	StateRunning
	StateExited
	StateKilled
)

// String returns the state name
func (s ProcessState) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	}
	return "unknown"
}

// Handle is a state-tagged view of one supervised process. The supervisor
// and monitor only interact with processes through this interface, so tests
// can inject fakes instead of real OS processes.
type Handle interface {
	// PID returns the OS process id.
	PID() int
	// State returns the current lifecycle state.
	State() ProcessState
	// ExitCode returns the exit code and true once the process has exited.
	ExitCode() (int, bool)
	// Terminate requests graceful shutdown (SIGTERM). Never fails on an
	// already-exited process.
	Terminate() error
	// Kill forcefully stops the process. Never fails on an already-exited
	// process.
	Kill() error
	// Wait blocks until the process exits or the timeout elapses. A timeout
	// of zero or less waits indefinitely.
	Wait(timeout time.Duration) error
}

// Launcher spawns the external trading-agent executable for one agent.
type Launcher interface {
	Launch(agentID int64, configPath string) (Handle, error)
}

// ExecLauncher launches the real trading-agent executable with os/exec.
// The config file path is passed via --config, matching the executable's
// CLI contract.
type ExecLauncher struct {
	Command string   // path to the trading-agent executable
	Args    []string // extra arguments placed before --config
	WorkDir string
	LogDir  string   // per-agent stdout/stderr logs; empty discards output
	Env     []string // KEY=VALUE pairs appended to the inherited environment
}

// Launch implements Launcher
func (l *ExecLauncher) Launch(agentID int64, configPath string) (Handle, error) {
	args := append(append([]string{}, l.Args...), "--config", configPath)
	cmd := exec.Command(l.Command, args...)
	cmd.Dir = l.WorkDir
	cmd.Env = append(os.Environ(), l.Env...)

	var logFile *os.File
	if l.LogDir != "" {
		if err := os.MkdirAll(l.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create agent log dir: %w", err)
		}
		path := filepath.Join(l.LogDir, fmt.Sprintf("agent-%d.log", agentID))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open agent log file: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("spawn agent %d executable: %w", agentID, err)
	}

	h := &osHandle{
		cmd:   cmd,
		state: StateRunning,
		done:  make(chan struct{}),
	}
	go h.reap(logFile)
	return h, nil
}

// osHandle wraps a real exec.Cmd. A reaper goroutine owns cmd.Wait so the
// exit code is available without blocking callers.
type osHandle struct {
	cmd *exec.Cmd

	mu       sync.Mutex
	state    ProcessState
	exitCode int

	done chan struct{}
}

func (h *osHandle) reap(logFile *os.File) {
	err := h.cmd.Wait()

	h.mu.Lock()
	if h.state != StateKilled {
		h.state = StateExited
	}
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	} else if err != nil {
		h.exitCode = -1
	}
	h.mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}
	close(h.done)
}

// PID implements Handle
func (h *osHandle) PID() int {
	return h.cmd.Process.Pid
}

// State implements Handle
func (h *osHandle) State() ProcessState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ExitCode implements Handle
func (h *osHandle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Terminate implements Handle
func (h *osHandle) Terminate() error {
	if _, exited := h.ExitCode(); exited {
		return nil
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process can exit between the check and the signal.
		if err == os.ErrProcessDone {
			return nil
		}
		return fmt.Errorf("terminate pid %d: %w", h.PID(), err)
	}
	return nil
}

// Kill implements Handle
func (h *osHandle) Kill() error {
	if _, exited := h.ExitCode(); exited {
		return nil
	}
	h.mu.Lock()
	h.state = StateKilled
	h.mu.Unlock()

	if err := h.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
		return fmt.Errorf("kill pid %d: %w", h.PID(), err)
	}
	return nil
}

// Wait implements Handle
func (h *osHandle) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-h.done
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pid %d still running after %v", h.PID(), timeout)
	}
}
