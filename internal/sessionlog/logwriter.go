// Package sessionlog provides the PTY session's optional, best-effort
// append-only log file, plus a cross-process manifest of currently
// running sessions for external tooling.
package sessionlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer is a line-buffered append-only log file mirroring a session's
// raw (sanitised) output. A write failure disables further writes rather
// than propagating — per the spec, logging is best-effort and must never
// fail a session operation.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	buffered *bufio.Writer
	disabled bool
}

// Open creates (or truncates) the log file at path and returns a Writer
// ready to receive lines. The directory must already exist; dir is the
// caller's responsibility (SPEC_FULL.md §6: a non-existent log_dir is a
// fatal startup error, not something this package silently creates).
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log %s: %w", path, err)
	}
	return &Writer{file: f, buffered: bufio.NewWriter(f)}, nil
}

// WriteLine appends text (expected to already end in, or be, a single
// line) followed by a newline. Errors disable the writer permanently;
// they are swallowed rather than returned, matching the best-effort
// contract.
func (w *Writer) WriteLine(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disabled || w.file == nil {
		return
	}
	if _, err := w.buffered.WriteString(text); err != nil {
		w.disabled = true
		return
	}
	if err := w.buffered.WriteByte('\n'); err != nil {
		w.disabled = true
		return
	}
	if err := w.buffered.Flush(); err != nil {
		w.disabled = true
	}
}

// Close flushes and closes the underlying file. Safe to call more than
// once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if !w.disabled {
		w.buffered.Flush()
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// PathFor computes the log file path for a session per SPEC_FULL.md §6:
// pty_<command_basename>_<session_id>.log inside dir.
func PathFor(dir, command, sessionID string) string {
	base := filepath.Base(command)
	return filepath.Join(dir, fmt.Sprintf("pty_%s_%s.log", base, sessionID))
}
