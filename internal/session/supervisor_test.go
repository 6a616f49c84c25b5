package session

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// quietLogger suppresses default slog output during tests.
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

// sleepBin locates a sleep binary for long-running test processes.
func sleepBin(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	return path
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	sup := NewSupervisor(filepath.Join(t.TempDir(), "test.pid"))
	t.Cleanup(func() { sup.Stop() })
	return sup
}

// waitForExit polls until the pid is gone or reduced to a zombie. The
// test binary never reaps the detached children, so the pid entry can
// outlive the process.
func waitForExit(t *testing.T, pid int) {
	t.Helper()
	for range 50 {
		proc, err := process.NewProcess(int32(pid))
		if err != nil {
			return
		}
		if running, err := proc.IsRunning(); err != nil || !running {
			return
		}
		if cmdline, err := proc.CmdlineSlice(); err != nil || len(cmdline) == 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("process %d did not exit", pid)
}

func TestSupervisor_Current_NoFile(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)

	if rec := sup.Current(); rec != nil {
		t.Errorf("expected no record for missing pid file, got %+v", rec)
	}
}

func TestSupervisor_Current_UnparsableFile(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)

	if err := os.WriteFile(sup.pidFile, []byte("not-a-pid"), 0600); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}
	if rec := sup.Current(); rec != nil {
		t.Errorf("expected no record for unparsable pid file, got %+v", rec)
	}
}

func TestSupervisor_Current_StaleRecord(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)

	// Run a process to completion, then record its pid
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run process: %v", err)
	}
	pid := cmd.Process.Pid
	if err := os.WriteFile(sup.pidFile, []byte(strconv.Itoa(pid)), 0600); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	// Stale record is absence, not an error
	if rec := sup.Current(); rec != nil {
		t.Errorf("expected stale record to read as absent, got %+v", rec)
	}
}

func TestSupervisor_Current_TrailingNewlineTolerated(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)
	sleep := sleepBin(t)

	pid, err := sup.Start([]string{sleep, "60"}, nil)
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if err := os.WriteFile(sup.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		t.Fatalf("failed to rewrite pid file: %v", err)
	}

	rec := sup.Current()
	if rec == nil || rec.Pid != pid {
		t.Errorf("expected record for pid %d, got %+v", pid, rec)
	}
}

func TestSupervisor_StartAndCurrent(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)
	sleep := sleepBin(t)

	argv := []string{sleep, "60"}
	env := map[string]string{"WPRSCTL_TEST_MARKER": "yes"}

	pid, err := sup.Start(argv, env)
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("expected positive pid, got %d", pid)
	}

	rec := sup.Current()
	if rec == nil {
		t.Fatal("expected live record after start")
	}
	if rec.Pid != pid {
		t.Errorf("expected pid %d, got %d", pid, rec.Pid)
	}
	if !slices.Equal(rec.Cmdline, argv) {
		t.Errorf("expected cmdline %v, got %v", argv, rec.Cmdline)
	}
	if rec.Environ["WPRSCTL_TEST_MARKER"] != "yes" {
		t.Errorf("expected env marker, got %q", rec.Environ["WPRSCTL_TEST_MARKER"])
	}
}

func TestSupervisor_Start_OverwritesPreviousRecord(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)
	sleep := sleepBin(t)

	first, err := sup.Start([]string{sleep, "60"}, nil)
	if err != nil {
		t.Fatalf("failed to start first process: %v", err)
	}
	second, err := sup.Start([]string{sleep, "61"}, nil)
	if err != nil {
		t.Fatalf("failed to start second process: %v", err)
	}
	defer func() {
		// First process is no longer tracked; clean it up directly
		if proc, err := os.FindProcess(first); err == nil {
			proc.Kill()
		}
	}()

	rec := sup.Current()
	if rec == nil || rec.Pid != second {
		t.Errorf("expected record for second pid %d, got %+v", second, rec)
	}
}

func TestSupervisor_Start_LaunchError(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)

	_, err := sup.Start([]string{"/nonexistent/wprsc-test-binary"}, nil)
	if err == nil {
		t.Fatal("expected launch error")
	}
	if !errors.Is(err, ErrLaunch) {
		t.Errorf("expected ErrLaunch, got %v", err)
	}
}

func TestSupervisor_Start_EmptyCommand(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)

	if _, err := sup.Start(nil, nil); !errors.Is(err, ErrLaunch) {
		t.Errorf("expected ErrLaunch for empty command, got %v", err)
	}
}

func TestSupervisor_Stop(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)
	sleep := sleepBin(t)

	pid, err := sup.Start([]string{sleep, "60"}, nil)
	if err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	if err := sup.Stop(); err != nil {
		t.Fatalf("failed to stop: %v", err)
	}
	waitForExit(t, pid)

	if _, err := os.Stat(sup.pidFile); !os.IsNotExist(err) {
		t.Error("expected pid file to be removed")
	}
	if rec := sup.Current(); rec != nil {
		t.Errorf("expected no record after stop, got %+v", rec)
	}
}

func TestSupervisor_Stop_NoProcess(t *testing.T) {
	quietLogger(t)
	sup := newTestSupervisor(t)

	// Stop with no pid file at all
	if err := sup.Stop(); err != nil {
		t.Errorf("expected stop to tolerate absence, got %v", err)
	}

	// Stop with a stale record
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run process: %v", err)
	}
	os.WriteFile(sup.pidFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0600)
	if err := sup.Stop(); err != nil {
		t.Errorf("expected stop to tolerate staleness, got %v", err)
	}
	if _, err := os.Stat(sup.pidFile); !os.IsNotExist(err) {
		t.Error("expected pid file to be removed")
	}
}
