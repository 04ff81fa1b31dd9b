// internal/supervisor/supervisor.go
//
// The supervisor owns every helper process the match host spawns: competitor
// clients and viewers. Handles move running -> terminated -> reaped; every
// spawned handle is reaped exactly once, on every exit path. Shutdown order
// on interruption: viewers are force-killed first so any foreground UI lets
// go immediately, competitor clients are asked to terminate, and only then
// is everything reaped in spawn order.

package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Kind classifies a helper process for shutdown ordering.
type Kind int

const (
	// KindViewer marks display helpers; killed first on teardown.
	KindViewer Kind = iota
	// KindPlayer marks competitor clients; asked to terminate gracefully.
	KindPlayer
)

func (k Kind) String() string {
	if k == KindViewer {
		return "viewer"
	}
	return "player"
}

// State is the lifecycle position of a handle.
type State int

const (
	StateRunning State = iota
	StateTerminated
	StateReaped
)

// Logger records supervisor activity. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Handle wraps one spawned helper process. Handles are owned exclusively by
// the supervisor that created them and mutated only through it.
type Handle struct {
	name string
	kind Kind
	cmd  *exec.Cmd

	mu    sync.Mutex
	state State

	reapOnce sync.Once
	waitErr  error
}

// Name reports the label the handle was spawned under.
func (h *Handle) Name() string { return h.name }

// Kind reports the helper classification.
func (h *Handle) Kind() Kind { return h.kind }

// State reports the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Exited reports whether the OS has confirmed process exit.
func (h *Handle) Exited() bool {
	return h.cmd.ProcessState != nil && h.cmd.ProcessState.Exited() || h.State() == StateReaped
}

func (h *Handle) signal(sig os.Signal, next State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateReaped || h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("supervisor: signal %s: %w", h.name, err)
	}
	h.state = next
	return nil
}

// Terminate asks the process to stop gracefully.
func (h *Handle) Terminate() error {
	return h.signal(syscall.SIGTERM, StateTerminated)
}

// Kill stops the process immediately.
func (h *Handle) Kill() error {
	return h.signal(syscall.SIGKILL, StateTerminated)
}

// Reap blocks until the process has exited and releases its resources.
// Reaping a handle that already exited, or reaping twice, is a no-op.
func (h *Handle) Reap() error {
	h.reapOnce.Do(func() {
		h.waitErr = h.cmd.Wait()
		h.mu.Lock()
		h.state = StateReaped
		h.mu.Unlock()
	})
	return h.waitErr
}

// Supervisor spawns and tracks helper processes for one match session.
type Supervisor struct {
	logger Logger

	mu      sync.Mutex
	handles []*Handle
}

// New builds an empty supervisor. A nil logger is replaced with a no-op.
func New(logger Logger) *Supervisor {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Supervisor{logger: logger}
}

// Spawn starts a helper process and tracks its handle. Viewer processes
// inherit the host's stdio; players only share stderr.
func (s *Supervisor) Spawn(name string, kind Kind, bin string, args ...string) (*Handle, error) {
	cmd := exec.Command(bin, args...)
	cmd.Stderr = os.Stderr
	if kind == KindViewer {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: spawn %s (%s): %w", name, bin, err)
	}
	h := &Handle{name: name, kind: kind, cmd: cmd}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	s.logger.Printf("supervisor: spawned %s %s pid=%d", kind, name, cmd.Process.Pid)
	return h, nil
}

// Handles returns the tracked handles in spawn order.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// Shutdown stops and reaps every tracked process. It is unconditional and
// idempotent: viewers are killed, players terminated, then all handles are
// reaped in spawn order. Signal errors are logged, never propagated, so a
// half-dead process cannot block the teardown of the rest.
func (s *Supervisor) Shutdown() {
	handles := s.Handles()
	for _, h := range handles {
		if h.Kind() != KindViewer {
			continue
		}
		if err := h.Kill(); err != nil {
			s.logger.Printf("supervisor: kill %s: %v", h.Name(), err)
		}
	}
	for _, h := range handles {
		if h.Kind() != KindPlayer {
			continue
		}
		if err := h.Terminate(); err != nil {
			s.logger.Printf("supervisor: terminate %s: %v", h.Name(), err)
		}
	}
	for _, h := range handles {
		if err := h.Reap(); err != nil {
			s.logger.Printf("supervisor: reaped %s: %v", h.Name(), err)
		} else {
			s.logger.Printf("supervisor: reaped %s", h.Name())
		}
	}
}
