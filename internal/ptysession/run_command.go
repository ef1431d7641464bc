package ptysession

import (
	"strings"
	"time"

	"github.com/shawnabu/pty-mcp/internal/ptyerr"
)

// Result is the outcome of a RunCommand call.
type Result struct {
	Output   string
	TimedOut bool
}

// RunCommand writes text followed by a freshly-generated sentinel command
// to the PTY master, waits for the sentinel token to appear in sanitised
// output (or for timeout to elapse), and returns the output produced in
// between with the submitted text, sentinel command, and bare token lines
// filtered out (spec.md §4.3). At most one RunCommand is in flight per
// session; a second call blocks behind the first.
func (s *Session) RunCommand(text string, timeout time.Duration) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.isRunning() {
		return Result{}, ptyerr.ErrSessionNotRunning
	}

	token, err := newSentinelToken()
	if err != nil {
		return Result{}, ptyerr.Wrap(ptyerr.ErrIoError, "generate sentinel: %v", err)
	}

	s.mu.Lock()
	sentinelCmd := strings.Replace(s.sentinelTemplate, "{sentinel}", token, 1)
	snapshot := s.buffer.Snapshot()
	ch := make(chan struct{})
	s.waiterToken = token
	s.waiterCh = ch
	s.mu.Unlock()

	started := time.Now()

	if err := s.writePTY([]byte(text + "\n" + sentinelCmd + "\n")); err != nil {
		s.mu.Lock()
		if s.waiterCh == ch {
			s.waiterCh = nil
		}
		s.mu.Unlock()
		return Result{}, err
	}

	if timeout <= 0 {
		// run_command with timeout=0 returns immediately with Timeout
		// (testable property #10).
		return s.timeoutResult(ch, snapshot, started), nil
	}

	select {
	case <-ch:
	case <-time.After(timeout):
		return s.timeoutResult(ch, snapshot, started), nil
	}

	s.mu.Lock()
	lines := s.buffer.LinesSince(snapshot)
	s.mu.Unlock()

	idx := indexOfLineContaining(lines, token)
	if idx >= 0 {
		lines = lines[:idx+1]
	}
	out := filterEchoLines(lines, text, sentinelCmd, token)

	if s.audit != nil {
		s.audit.RunCommand(s.ID, text, time.Since(started), false)
	}
	return Result{Output: strings.Join(out, "\n")}, nil
}

// timeoutResult detaches the waiter (the sentinel may still arrive later,
// but no one is listening for it) and returns whatever output has
// accumulated so far, filtered the same way a completed call would be.
func (s *Session) timeoutResult(ch chan struct{}, snapshot int, started time.Time) Result {
	s.mu.Lock()
	if s.waiterCh == ch {
		s.waiterCh = nil
	}
	lines := s.buffer.LinesSince(snapshot)
	s.mu.Unlock()

	if s.audit != nil {
		s.audit.RunCommand(s.ID, "", time.Since(started), true)
	}
	return Result{Output: strings.Join(lines, "\n"), TimedOut: true}
}

func indexOfLineContaining(lines []string, token string) int {
	for i, line := range lines {
		if strings.Contains(line, token) {
			return i
		}
	}
	return -1
}

// filterEchoLines drops any line exactly equal to the submitted text, the
// formatted sentinel command, or the bare sentinel token. Per spec.md
// §9's open question, multi-line submitted text is compared whole
// against single lines and so rarely matches; that's an intentional
// conservative under-filter, not a bug (see DESIGN.md).
func filterEchoLines(lines []string, text, sentinelCmd, token string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == text || line == sentinelCmd || line == token {
			continue
		}
		out = append(out, line)
	}
	return out
}
