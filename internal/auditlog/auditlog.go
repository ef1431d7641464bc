// Package auditlog is a best-effort JSONL activity log for PTY session
// lifecycle events and run_command calls. It never fails a caller: a
// write error disables the logger rather than propagating, matching
// spec.md §7's log-writer contract.
package auditlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger appends one JSON object per line to a log file. The zero value
// (via New(false, ...)) is a no-op logger safe to call on.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	enabled  bool
	actor    string
	disabled bool
}

// New opens (appending, creating if needed) the log file at path. If
// enabled is false, or opening the file fails, the returned Logger is a
// no-op: every subsequent call is silently swallowed.
func New(enabled bool, path, actor string) *Logger {
	l := &Logger{enabled: enabled, actor: actor}
	if !enabled {
		return l
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.disabled = true
		return l
	}
	l.file = f
	return l
}

// Close flushes and closes the underlying file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) write(event string, fields map[string]any) {
	if l == nil || !l.enabled || l.disabled || l.file == nil {
		return
	}
	rec := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"actor": l.actor,
		"event": event,
	}
	for k, v := range fields {
		rec[k] = v
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.disabled = true
	}
}

// SessionStarted records a session coming up.
func (l *Logger) SessionStarted(sessionID, command string, args []string) {
	l.write("session_started", map[string]any{
		"session_id": sessionID,
		"command":    command,
		"args":       args,
	})
}

// SessionStopped records a session tearing down, with the reason
// (explicit stop, idle timeout, or child exit).
func (l *Logger) SessionStopped(sessionID, reason string) {
	l.write("session_stopped", map[string]any{
		"session_id": sessionID,
		"reason":     reason,
	})
}

// RunCommand records one run_command call.
func (l *Logger) RunCommand(sessionID, command string, d time.Duration, timedOut bool) {
	l.write("run_command", map[string]any{
		"session_id":  sessionID,
		"command":     command,
		"duration_ms": d.Milliseconds(),
		"timed_out":   timedOut,
	})
}

// IdleTimeout records the idle watchdog firing.
func (l *Logger) IdleTimeout(sessionID string, idleFor time.Duration) {
	l.write("idle_timeout", map[string]any{
		"session_id":    sessionID,
		"idle_for_secs": idleFor.Seconds(),
	})
}
