// Package ptysession owns one child process plus its PTY master end: it
// runs the non-blocking read pump, normalises output through
// internal/sanitize into an internal/scrollback buffer, detects
// sentinel-based command completion, and manages the session's
// start/stop lifecycle and idle timeout. It is the core of the system
// (spec.md §2 item 4).
package ptysession

import (
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/shawnabu/pty-mcp/internal/auditlog"
	"github.com/shawnabu/pty-mcp/internal/ptyerr"
	"github.com/shawnabu/pty-mcp/internal/sanitize"
	"github.com/shawnabu/pty-mcp/internal/scrollback"
	"github.com/shawnabu/pty-mcp/internal/sessionlog"
)

const readChunkSize = 64 * 1024

// idleWatchdogInterval is the watchdog cadence; spec.md §4.3 requires
// checking at least once a second.
const idleWatchdogInterval = 1 * time.Second

const termWaitTimeout = 2 * time.Second

// Session is one PTY-backed child process plus its bookkeeping: buffer,
// log writer, sentinel template, and lifecycle state.
type Session struct {
	ID      string
	Command string // resolved executable, for List() descriptors

	cfg    Config
	logger *slog.Logger
	audit  *auditlog.Logger

	ptm *os.File
	cmd *exec.Cmd

	mu               sync.Mutex // guards the fields below
	status           Status
	sentinelTemplate string
	lastActivity     time.Time
	waiterToken      string
	waiterCh         chan struct{}

	buffer *scrollback.Buffer
	logw   *sessionlog.Writer
	// logPending holds a log line fragment with no trailing newline yet,
	// read and written only by readPump/handleChunk (a single goroutine),
	// so it needs no lock.
	logPending string

	runMu sync.Mutex // serializes RunCommand calls; at most one in flight
	ptyMu sync.Mutex // serializes raw writes to the PTY master

	pumpDone chan struct{}
	exited   chan struct{}
	waitErr  error
	stopOnce sync.Once
	onStop   func(id, reason string)
}

// Start spawns the child process under a PTY and begins the read pump.
// logw, if non-nil, is closed by the session on Stop. audit and logger
// may be nil. onStop, if non-nil, is called exactly once after the
// session reaches StatusStopped, however the stop was triggered
// (explicit Remove, idle timeout, or the child exiting on its own) —
// the manager uses it to deregister the session (spec.md §3).
func Start(id string, cfg Config, logw *sessionlog.Writer, audit *auditlog.Logger, logger *slog.Logger, onStop func(id, reason string)) (*Session, error) {
	cfg, err := cfg.WithDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		ID:               id,
		Command:          cfg.Command,
		cfg:              cfg,
		logger:           logger.With("session_id", id),
		audit:            audit,
		status:           StatusStarting,
		sentinelTemplate: cfg.SentinelTemplate,
		buffer:           scrollback.New(cfg.BufferLines),
		logw:             logw,
		pumpDone:         make(chan struct{}),
		exited:           make(chan struct{}),
		onStop:           onStop,
	}

	s.cmd = exec.Command(cfg.Command, cfg.Args...)
	if cfg.Cwd != "" {
		s.cmd.Dir = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		s.cmd.Env = mergeEnv(os.Environ(), cfg.Env)
	}

	ptm, err := pty.StartWithSize(s.cmd, &pty.Winsize{
		Rows: uint16(cfg.Rows),
		Cols: uint16(cfg.Cols),
	})
	if err != nil {
		s.status = StatusStopped
		return nil, ptyerr.Wrap(ptyerr.ErrSpawnFailed, "start %q: %v", cfg.Command, err)
	}
	s.ptm = ptm
	s.status = StatusRunning
	s.lastActivity = time.Now()

	if s.audit != nil {
		s.audit.SessionStarted(id, cfg.Command, cfg.Args)
	}
	s.logger.Info("session started", "command", cfg.Command, "args", cfg.Args, "pid", s.cmd.Process.Pid)

	go s.reap()
	go s.readPump()
	go s.idleWatchdog()

	return s, nil
}

// mergeEnv overrides base (typically os.Environ()) with overrides,
// matching virtualterminal.VT.StartPTY's override-by-key merge.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		for i, c := range kv {
			if c == '=' {
				key = kv[:i]
				break
			}
		}
		if _, override := overrides[key]; !override {
			env = append(env, kv)
		}
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// reap blocks until the child exits, recording its exit error and
// unblocking anyone waiting on termination during Stop.
func (s *Session) reap() {
	s.waitErr = s.cmd.Wait()
	close(s.exited)
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastActivity returns the monotonic timestamp of the last I/O.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusRunning
}

// GetBuffer returns the scrollback tail, per spec.md §4.3. n == nil
// returns the full buffer. Valid in any session state.
func (s *Session) GetBuffer(n *int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Tail(n)
}

// BufferLineCount returns the number of completed lines currently held,
// for list_sessions descriptors.
func (s *Session) BufferLineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.LineCount()
}

// SetSentinel validates and swaps in a new sentinel template.
func (s *Session) SetSentinel(template string) error {
	if err := ValidateSentinelTemplate(template); err != nil {
		return err
	}
	s.mu.Lock()
	s.sentinelTemplate = template
	s.mu.Unlock()
	return nil
}

// SendKeys writes bytes verbatim to the PTY master: no echo filtering, no
// completion wait (spec.md §4.3).
func (s *Session) SendKeys(keys []byte) error {
	if !s.isRunning() {
		return ptyerr.ErrSessionNotRunning
	}
	return s.writePTY(keys)
}

func (s *Session) writePTY(p []byte) error {
	s.ptyMu.Lock()
	defer s.ptyMu.Unlock()
	_, err := s.ptm.Write(p)
	if err != nil {
		return ptyerr.Wrap(ptyerr.ErrIoError, "write pty: %v", err)
	}
	return nil
}

// readPump is the session's sole reader of the PTY master: it reads a
// chunk, sanitises it, appends the clean text to the buffer and the log
// writer, wakes a waiting RunCommand if the sentinel has appeared, and
// loops until the master is closed or returns an error.
func (s *Session) readPump() {
	defer close(s.pumpDone)

	buf := make([]byte, readChunkSize)
	var residue []byte
	for {
		n, err := s.ptm.Read(buf)
		if n > 0 {
			s.handleChunk(&residue, buf[:n])
		}
		if err != nil {
			break
		}
	}
	go s.Stop("child exited")
}

func (s *Session) handleChunk(residue *[]byte, chunk []byte) {
	text, newResidue := sanitize.Sanitize(*residue, chunk)
	*residue = newResidue
	if text == "" {
		return
	}

	s.mu.Lock()
	s.buffer.Append(text)
	s.lastActivity = time.Now()
	var wake chan struct{}
	if s.waiterCh != nil && s.buffer.Contains(s.waiterToken) {
		wake = s.waiterCh
		s.waiterCh = nil
	}
	s.mu.Unlock()

	if s.logw != nil {
		s.writeLog(text)
	}
	if wake != nil {
		close(wake)
	}
}

// Stop transitions the session to stopping then stopped: SIGTERM, wait up
// to 2s, SIGKILL if still alive, close the PTY master, join the read
// pump, reap the child, flush the log. Idempotent: stopping an
// already-stopped session is a no-op success (testable property #8).
func (s *Session) Stop(reason string) error {
	s.mu.Lock()
	if s.status == StatusStopped {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusStopping
	s.mu.Unlock()

	s.stopOnce.Do(func() { s.teardown(reason) })
	return nil
}

func (s *Session) teardown(reason string) {
	s.logger.Info("session stopping", "reason", reason)

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-s.exited:
		case <-time.After(termWaitTimeout):
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
	}

	if s.ptm != nil {
		_ = s.ptm.Close()
	}
	<-s.pumpDone

	s.mu.Lock()
	if wake := s.waiterCh; wake != nil {
		s.waiterCh = nil
		close(wake)
	}
	s.mu.Unlock()

	if s.logw != nil {
		s.flushLog()
		_ = s.logw.Close()
	}
	if s.audit != nil {
		s.audit.SessionStopped(s.ID, reason)
	}

	s.mu.Lock()
	s.status = StatusStopped
	s.mu.Unlock()
	s.logger.Info("session stopped", "reason", reason)

	if s.onStop != nil {
		s.onStop(s.ID, reason)
	}
}

// idleWatchdog checks, at idleWatchdogInterval cadence, whether the
// session has been idle longer than its configured timeout, and stops it
// if so (spec.md §4.3).
func (s *Session) idleWatchdog() {
	ticker := time.NewTicker(idleWatchdogInterval)
	defer ticker.Stop()
	timeout := time.Duration(s.cfg.IdleTimeoutSecs) * time.Second

	for {
		select {
		case <-s.pumpDone:
			return
		case <-ticker.C:
			s.mu.Lock()
			status := s.status
			idleFor := time.Since(s.lastActivity)
			s.mu.Unlock()
			if status != StatusRunning {
				continue
			}
			if idleFor > timeout {
				if s.audit != nil {
					s.audit.IdleTimeout(s.ID, idleFor)
				}
				go s.Stop("idle timeout")
				return
			}
		}
	}
}

// writeLog appends sanitised text to the session log a completed line at
// a time, carrying any trailing fragment (no newline yet) over to the
// next chunk in s.logPending instead of writing it as its own line —
// chunk boundaries from the PTY read don't align with line boundaries,
// and without this a line split across two reads would land in the log
// as two lines instead of one.
func (s *Session) writeLog(text string) {
	combined := s.logPending + text
	lines := strings.Split(combined, "\n")
	s.logPending = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		s.logw.WriteLine(line)
	}
}

// flushLog writes out any trailing log fragment left over with no
// terminating newline, so a session killed mid-line doesn't lose it.
func (s *Session) flushLog() {
	if s.logw == nil || s.logPending == "" {
		return
	}
	s.logw.WriteLine(s.logPending)
	s.logPending = ""
}
