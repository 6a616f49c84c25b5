package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ErrLaunch indicates that the companion process failed to start.
var ErrLaunch = errors.New("companion launch failed")

// ProcessRecord describes the live supervised process: its pid, the
// command line it is running with, and its environment.
type ProcessRecord struct {
	Pid     int
	Cmdline []string
	Environ map[string]string
}

// Supervisor tracks a single companion process through a persisted pid
// file. The record is tri-state: absent (no file), stale (file present
// but no matching live process, treated as absent) or live.
type Supervisor struct {
	pidFile string
}

func NewSupervisor(pidFile string) *Supervisor {
	return &Supervisor{pidFile: pidFile}
}

// Current returns the live supervised process, or nil when the pid
// file is absent, unreadable, or names a process that is no longer
// running. Staleness is normal absence, never an error.
func (s *Supervisor) Current() *ProcessRecord {
	data, err := os.ReadFile(s.pidFile)
	if err != nil {
		return nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		slog.Debug("Ignoring unparsable pid file", "path", s.pidFile)
		return nil
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Debug("Stale pid file, process gone", "pid", pid)
		return nil
	}
	running, err := proc.IsRunning()
	if err != nil || !running {
		slog.Debug("Stale pid file, process gone", "pid", pid)
		return nil
	}

	cmdline, err := proc.CmdlineSlice()
	if err != nil || len(cmdline) == 0 {
		slog.Debug("Cannot read companion command line", "pid", pid, "error", err)
		return nil
	}

	environ := make(map[string]string)
	if vars, err := proc.Environ(); err == nil {
		for _, kv := range vars {
			if k, v, ok := strings.Cut(kv, "="); ok {
				environ[k] = v
			}
		}
	}

	return &ProcessRecord{Pid: pid, Cmdline: cmdline, Environ: environ}
}

// Start launches the command with env merged over the ambient
// environment, detached into its own session so it outlives this
// invocation, and records its pid, overwriting any previous record.
func (s *Supervisor) Start(argv []string, env map[string]string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("%w: empty command", ErrLaunch)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	slog.Info("Starting companion", "command", strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(s.pidFile, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return pid, fmt.Errorf("%w: writing pid file: %v", ErrLaunch, err)
	}

	// The companion runs in its own session; we never wait for it.
	cmd.Process.Release()

	return pid, nil
}

// Stop sends a graceful termination signal to the live process, if
// any, and always removes the pid file afterward.
func (s *Supervisor) Stop() error {
	if rec := s.Current(); rec != nil {
		slog.Info("Stopping companion", "pid", rec.Pid)
		if err := unix.Kill(rec.Pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("failed to stop companion pid %d: %w", rec.Pid, err)
		}
	}
	if err := os.Remove(s.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
