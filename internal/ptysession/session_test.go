package ptysession

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shawnabu/pty-mcp/internal/sessionlog"
)

func requireBash(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not found in PATH")
	}
	return path
}

func startBash(t *testing.T) *Session {
	t.Helper()
	bash := requireBash(t)
	s, err := Start("aaaaaaaaaaaa", Config{Command: bash}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop("test cleanup") })
	return s
}

// S1: echo filtering and sentinel filtering.
func TestRunCommandEchoAndSentinelFiltered(t *testing.T) {
	s := startBash(t)

	res, err := s.RunCommand("echo hello", 5*time.Second)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if res.TimedOut {
		t.Fatal("unexpected timeout")
	}
	if !containsLine(res.Output, "hello") {
		t.Errorf("output %q should contain line %q", res.Output, "hello")
	}
	if containsLine(res.Output, "echo hello") {
		t.Errorf("output %q should not echo the submitted command", res.Output)
	}
}

// S2: ANSI escape stripping end to end.
func TestRunCommandStripsANSI(t *testing.T) {
	s := startBash(t)

	res, err := s.RunCommand(`printf '\e[31mRED\e[0m\n'`, 5*time.Second)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if got := strings.TrimRight(res.Output, "\n"); got != "RED" {
		t.Errorf("output = %q, want %q", got, "RED")
	}
}

// S3: carriage-return overwrite collapsing end to end.
func TestRunCommandCollapsesCROverwrite(t *testing.T) {
	s := startBash(t)

	res, err := s.RunCommand(`printf 'Progress: 10%%\rProgress: 100%%\n'`, 5*time.Second)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if got := strings.TrimRight(res.Output, "\n"); got != "Progress: 100%" {
		t.Errorf("output = %q, want %q", got, "Progress: 100%")
	}
}

// S4: switching sentinel template mid-session (bash -> python3 REPL).
func TestSetSentinelAndSwitchInterpreter(t *testing.T) {
	s := startBash(t)
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not found in PATH")
	}

	if err := s.SendKeys([]byte("python3\n")); err != nil {
		t.Fatalf("SendKeys: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := s.SetSentinel("print('{sentinel}')"); err != nil {
		t.Fatalf("SetSentinel: %v", err)
	}

	res, err := s.RunCommand("print(2+2)", 5*time.Second)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !containsLine(res.Output, "4") {
		t.Errorf("output %q should contain line %q", res.Output, "4")
	}
}

// S5: timeout returns promptly with partial output, session stays
// running, and the caller can interrupt and keep using the session.
func TestRunCommandTimeoutThenInterrupt(t *testing.T) {
	s := startBash(t)

	start := time.Now()
	res, err := s.RunCommand("sleep 5", 1*time.Second)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut = true")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("RunCommand took %v, expected to return near the 1s timeout", elapsed)
	}
	if s.Status() != StatusRunning {
		t.Errorf("status = %v, want running after timeout", s.Status())
	}

	if err := s.SendKeys([]byte("\x03")); err != nil {
		t.Fatalf("SendKeys interrupt: %v", err)
	}

	res, err = s.RunCommand("echo ok", 5*time.Second)
	if err != nil {
		t.Fatalf("RunCommand after interrupt: %v", err)
	}
	if !containsLine(res.Output, "ok") {
		t.Errorf("output %q should contain line %q", res.Output, "ok")
	}
}

// Boundary: run_command with timeout=0 returns immediately with Timeout.
func TestRunCommandZeroTimeout(t *testing.T) {
	s := startBash(t)

	res, err := s.RunCommand("echo hi", 0)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut = true for timeout=0")
	}
}

func TestGetBufferBoundaries(t *testing.T) {
	s := startBash(t)

	if _, err := s.RunCommand("echo one; echo two; echo three", 5*time.Second); err != nil {
		t.Fatalf("RunCommand: %v", err)
	}

	zero := 0
	if got := s.GetBuffer(&zero); got != "" {
		t.Errorf("GetBuffer(0) = %q, want empty", got)
	}

	large := 100000
	all := s.GetBuffer(&large)
	full := s.GetBuffer(nil)
	if all != full {
		t.Errorf("GetBuffer(huge) = %q, want equal to GetBuffer(nil) = %q", all, full)
	}
}

func TestSetSentinelIdempotent(t *testing.T) {
	s := startBash(t)
	if err := s.SetSentinel("echo X{sentinel}X"); err != nil {
		t.Fatalf("first SetSentinel: %v", err)
	}
	if err := s.SetSentinel("echo X{sentinel}X"); err != nil {
		t.Fatalf("second SetSentinel: %v", err)
	}
}

func TestStopIsIdempotentAndClosesPTY(t *testing.T) {
	s := startBash(t)
	if err := s.Stop("test"); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if s.Status() != StatusStopped {
		t.Fatalf("status = %v, want stopped", s.Status())
	}
	if err := s.Stop("test again"); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestOperationsFailWhenNotRunning(t *testing.T) {
	s := startBash(t)
	_ = s.Stop("shutdown")

	if err := s.SendKeys([]byte("x")); err == nil {
		t.Error("SendKeys on a stopped session should fail")
	}
	if _, err := s.RunCommand("echo hi", time.Second); err == nil {
		t.Error("RunCommand on a stopped session should fail")
	}
	// GetBuffer and Stop remain valid on a stopped session.
	_ = s.GetBuffer(nil)
	if err := s.Stop("again"); err != nil {
		t.Errorf("Stop on already-stopped session should succeed, got %v", err)
	}
}

func TestSpawnFailure(t *testing.T) {
	_, err := Start("bbbbbbbbbbbb", Config{Command: "/nonexistent/binary-xyz"}, nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected spawn failure")
	}
}

// TestWriteLogCarriesPartialLineAcrossChunks guards against a line whose
// bytes arrive split across two PTY reads being logged as two separate
// lines: the fragment with no trailing newline must be held over and
// joined with the next chunk before it's written.
func TestWriteLogCarriesPartialLineAcrossChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	logw, err := sessionlog.Open(path)
	if err != nil {
		t.Fatalf("sessionlog.Open: %v", err)
	}
	s := &Session{logw: logw}

	s.writeLog("Processing... ")
	s.writeLog("done\nnext line\n")
	s.flushLog()
	_ = logw.Close()

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "Processing... done\nnext line\n"
	if string(contents) != want {
		t.Errorf("log contents = %q, want %q", contents, want)
	}
}

func TestWriteLogFlushesTrailingFragmentWithoutNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	logw, err := sessionlog.Open(path)
	if err != nil {
		t.Fatalf("sessionlog.Open: %v", err)
	}
	s := &Session{logw: logw}

	s.writeLog("no newline yet")
	s.flushLog()
	_ = logw.Close()

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(contents) != "no newline yet\n" {
		t.Errorf("log contents = %q, want %q", contents, "no newline yet\n")
	}
}

func containsLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}
