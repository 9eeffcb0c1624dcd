package bridge

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/texelworks/painterlink/internal/core"
)

// CompanionState represents the current state of the companion process.
type CompanionState string

const (
	CompanionStateStarting CompanionState = "starting"
	CompanionStateRunning  CompanionState = "running"
	CompanionStateStopped  CompanionState = "stopped"
	CompanionStateExited   CompanionState = "exited"
	CompanionStateFailed   CompanionState = "failed"
)

const terminateTimeout = 5 * time.Second

// Supervisor launches the companion process with the bridge's connection
// parameters, observes its termination and respawns it after a crash or a
// lost connection. Respawn is unconditional: no backoff, no retry limit.
type Supervisor struct {
	cfg  core.CompanionConfig
	port int

	mu           sync.Mutex
	cmd          *exec.Cmd
	pid          int
	startTime    time.Time
	state        CompanionState
	shuttingDown bool

	logEvent func(eventType, details string)
}

func NewSupervisor(cfg core.CompanionConfig, port int) *Supervisor {
	return &Supervisor{cfg: cfg, port: port, state: CompanionStateStopped}
}

// SetEventLogger sets the callback for recording companion lifecycle events.
func (s *Supervisor) SetEventLogger(fn func(eventType, details string)) {
	s.logEvent = fn
}

func (s *Supervisor) event(eventType, details string) {
	if s.logEvent != nil {
		s.logEvent(eventType, details)
	}
}

// Pid returns the companion's process id, or 0 when not running.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// State returns the companion's lifecycle state.
func (s *Supervisor) State() CompanionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Alive reports whether the companion process currently exists.
func (s *Supervisor) Alive() bool {
	pid := s.Pid()
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

// Bootstrap spawns the companion process: the configured interpreter runs the
// startup script, with the bridge's bound port and launch parameters passed
// through the environment.
func (s *Supervisor) Bootstrap() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return fmt.Errorf("bridge is shutting down")
	}
	if s.cfg.Python == "" || s.cfg.Startup == "" {
		return fmt.Errorf("companion launch parameters not configured")
	}

	args := append([]string{s.cfg.Startup}, s.cfg.Args...)
	cmd := exec.Command(s.cfg.Python, args...)

	if s.cfg.Workdir != "" {
		cmd.Dir = s.cfg.Workdir
	}

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("PAINTERLINK_ENGINE_PORT=%d", s.port),
		fmt.Sprintf("PAINTERLINK_ENGINE_PYTHON=%s", s.cfg.Python),
		fmt.Sprintf("PAINTERLINK_ENGINE_STARTUP=%s", s.cfg.Startup),
	)
	for k, v := range s.cfg.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	// Own session, so the companion survives host signals and can be
	// terminated as a unit
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// Combined stdout/stderr, streamed into the host log line by line
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		s.state = CompanionStateFailed
		return fmt.Errorf("failed to start companion: %w", err)
	}
	pw.Close()

	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.startTime = time.Now()
	s.state = CompanionStateRunning

	slog.Info("Companion started", "pid", s.pid, "python", s.cfg.Python, "startup", s.cfg.Startup, "port", s.port)
	s.event("companion_started", fmt.Sprintf("PID: %d, port: %d", s.pid, s.port))

	go s.streamOutput(pr, s.pid)
	go s.monitor(cmd)

	return nil
}

func (s *Supervisor) streamOutput(r *os.File, pid int) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		slog.Info("companion", "pid", pid, "line", scanner.Text())
	}
}

// monitor waits for the companion to exit and decides whether to respawn.
// A crash respawns indefinitely; a clean exit does not.
func (s *Supervisor) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd != cmd {
		// The process was already replaced by a restart
		s.mu.Unlock()
		return
	}
	if s.shuttingDown || s.state == CompanionStateStopped {
		// We terminated it intentionally
		s.state = CompanionStateStopped
		s.pid = 0
		s.mu.Unlock()
		return
	}

	pid := s.pid
	s.pid = 0

	if err == nil {
		s.state = CompanionStateExited
		s.mu.Unlock()
		slog.Info("Companion exited normally", "pid", pid)
		s.event("companion_exited", fmt.Sprintf("PID: %d, exit code 0", pid))
		return
	}

	var details string
	if exitErr, ok := err.(*exec.ExitError); ok {
		details = fmt.Sprintf("PID: %d, exit code %d", pid, exitErr.ExitCode())
	} else {
		details = fmt.Sprintf("PID: %d, %v", pid, err)
	}
	s.state = CompanionStateExited
	s.mu.Unlock()

	slog.Warn("Companion crashed, will respawn", "pid", pid, "error", err)
	s.event("companion_crashed", details)

	delay := s.cfg.RespawnDelay
	if delay <= 0 {
		delay = time.Second
	}
	time.Sleep(delay)

	s.mu.Lock()
	if s.shuttingDown || s.cmd != cmd {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.event("companion_respawning", "crash respawn")
	if err := s.Bootstrap(); err != nil {
		slog.Error("Failed to respawn companion", "error", err)
		s.mu.Lock()
		s.state = CompanionStateFailed
		s.mu.Unlock()
		s.event("companion_failed", fmt.Sprintf("respawn failed: %v", err))
	}
}

// HandleDisconnect restarts the companion after the peer connection is lost.
// If the process is still alive it is terminated first, so a disconnect never
// produces a duplicate companion; if it is already dead, the exit monitor
// owns the respawn and nothing happens here.
func (s *Supervisor) HandleDisconnect() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	pid := s.pid
	cmd := s.cmd
	s.mu.Unlock()

	alive := false
	if pid > 0 {
		exists, err := process.PidExists(int32(pid))
		alive = err == nil && exists
	}
	if !alive {
		slog.Debug("Peer lost with companion already gone, exit monitor handles the respawn")
		return
	}

	slog.Warn("Peer connection lost with companion still alive, restarting it", "pid", pid)
	s.event("companion_restarting", fmt.Sprintf("peer connection lost, PID: %d", pid))

	// Mark stopped first so the exit monitor does not also respawn
	s.mu.Lock()
	s.state = CompanionStateStopped
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := gracefulTerminate(cmd.Process, terminateTimeout); err != nil {
			slog.Error("Failed to terminate companion", "pid", pid, "error", err)
		}
	}

	if err := s.Bootstrap(); err != nil {
		slog.Error("Failed to restart companion after disconnect", "error", err)
		s.event("companion_failed", fmt.Sprintf("restart failed: %v", err))
	}
}

// Shutdown stops the companion and suppresses any further respawns.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	s.state = CompanionStateStopped
	pid := s.pid
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil && pid > 0 {
		slog.Debug("Terminating companion", "pid", pid)
		if err := gracefulTerminate(cmd.Process, terminateTimeout); err != nil {
			slog.Error("Failed to terminate companion during shutdown", "pid", pid, "error", err)
		}
		s.event("companion_stopped", fmt.Sprintf("PID: %d", pid))
	}
}

// gracefulTerminate sends SIGTERM and escalates to SIGKILL when the process
// is still around after the timeout.
func gracefulTerminate(proc *os.Process, timeout time.Duration) error {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Already gone
		return nil
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
	}

	slog.Debug("Companion did not exit in time, force killing", "pid", proc.Pid)
	return proc.Signal(syscall.SIGKILL)
}
