package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

// ErrProcessExited is returned when signalling a process that already exited.
var ErrProcessExited = errors.New("process already exited")

// ExecSupervisor runs subprocesses in their own process group so that pause,
// resume and kill reach every child.
type ExecSupervisor struct {
	grace  time.Duration
	logger arbor.ILogger
}

// NewExecSupervisor creates a supervisor. grace is the delay between SIGTERM and SIGKILL.
func NewExecSupervisor(grace time.Duration, logger arbor.ILogger) *ExecSupervisor {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &ExecSupervisor{grace: grace, logger: logger}
}

type execHandle struct {
	cmd     *exec.Cmd
	logFile *os.File
	done    chan struct{}
	err     error
	mu      sync.Mutex
	exited  bool
}

func (h *execHandle) PID() int { return h.cmd.Process.Pid }

func (h *execHandle) Wait() error {
	<-h.done
	return h.err
}

func (h *execHandle) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// Spawn starts spec. Output is appended to spec.LogPath when set.
func (s *ExecSupervisor) Spawn(ctx context.Context, spec interfaces.ProcessSpec) (interfaces.ProcessHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Command == "" {
		return nil, interfaces.NewConfigurationError("process %q has no command", spec.Name)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setupProcessGroup(cmd)

	h := &execHandle{cmd: cmd, done: make(chan struct{})}

	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open process log: %w", err)
		}
		cmd.Stdout = f
		cmd.Stderr = f
		h.logFile = f
	}

	if err := cmd.Start(); err != nil {
		if h.logFile != nil {
			h.logFile.Close()
		}
		return nil, interfaces.NewConfigurationError("failed to start %s: %v", spec.Command, err)
	}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exited = true
		h.err = err
		h.mu.Unlock()
		if h.logFile != nil {
			h.logFile.Close()
		}
		close(h.done)
	}()

	s.logger.Debug().
		Str("name", spec.Name).
		Int("pid", cmd.Process.Pid).
		Str("log", spec.LogPath).
		Msg("Process spawned")

	return h, nil
}

// Pause stops the process group.
func (s *ExecSupervisor) Pause(ph interfaces.ProcessHandle) error {
	h, err := s.handle(ph)
	if err != nil {
		return err
	}
	return stopGroup(h.cmd)
}

// Resume continues a stopped process group.
func (s *ExecSupervisor) Resume(ph interfaces.ProcessHandle) error {
	h, err := s.handle(ph)
	if err != nil {
		return err
	}
	return continueGroup(h.cmd)
}

// Kill terminates the process group, escalating to a hard kill after the
// grace period, and returns once the process has exited.
func (s *ExecSupervisor) Kill(ph interfaces.ProcessHandle) error {
	h, err := s.handle(ph)
	if err != nil {
		return err
	}

	// a stopped process would not act on SIGTERM
	_ = continueGroup(h.cmd)
	if err := terminateGroup(h.cmd); err != nil && !h.hasExited() {
		s.logger.Warn().Err(err).Int("pid", h.PID()).Msg("Failed to terminate process group")
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(s.grace):
	}

	s.logger.Warn().Int("pid", h.PID()).Dur("grace", s.grace).Msg("Process ignored termination, killing")
	if err := killGroup(h.cmd); err != nil && !h.hasExited() {
		return fmt.Errorf("failed to kill process %d: %w", h.PID(), err)
	}
	<-h.done
	return nil
}

func (s *ExecSupervisor) handle(ph interfaces.ProcessHandle) (*execHandle, error) {
	h, ok := ph.(*execHandle)
	if !ok {
		return nil, fmt.Errorf("unsupported process handle %T", ph)
	}
	if h.hasExited() {
		return nil, ErrProcessExited
	}
	return h, nil
}
