// Package ptyerr defines the behavioural error taxonomy shared by the
// session, manager, and tool-server layers. Errors are values, never
// process aborts: a session-scoped fault surfaces as one of these and the
// caller decides what to do next.
package ptyerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers should compare with errors.Is, since each is
// frequently wrapped with additional context via fmt.Errorf("...: %w").
var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrSpawnFailed       = errors.New("spawn failed")
	ErrUnknownSession    = errors.New("unknown session")
	ErrSessionNotRunning = errors.New("session not running")
	ErrInvalidSentinel   = errors.New("invalid sentinel template")
	ErrTimeout           = errors.New("timeout")
	ErrCancelled         = errors.New("cancelled")
	ErrIoError           = errors.New("io error")
)

// Wrap formats msg (with args, as fmt.Sprintf) and wraps it around sentinel
// so callers can still errors.Is(err, sentinel) after the wrap.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
