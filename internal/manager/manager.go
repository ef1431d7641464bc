// Package manager is the process-wide session registry (spec.md §2 item
// 5, §4.4): create/lookup/remove sessions, enforce maximum concurrent
// sessions, vend session IDs, and fan out shutdown.
package manager

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/shawnabu/pty-mcp/internal/auditlog"
	"github.com/shawnabu/pty-mcp/internal/ptyerr"
	"github.com/shawnabu/pty-mcp/internal/ptysession"
	"github.com/shawnabu/pty-mcp/internal/sessionlog"
)

// Descriptor is the snapshot shape returned by List, per spec.md §6
// list_sessions.
type Descriptor struct {
	ID                       string
	Command                  string
	Status                   string
	SecondsSinceLastActivity float64
	BufferLines              int
}

// Manager owns the in-process registry of running sessions.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*ptysession.Session
	reserved    map[string]struct{}
	maxSessions int
	logDir      string
	audit       *auditlog.Logger
	logger      *slog.Logger
	manifest    *sessionlog.Manifest
}

// New creates a Manager. maxSessions <= 0 is treated as unlimited-by-zero,
// i.e. no session may ever start; callers should apply spec.md §6's
// default of 10 before calling New if they want that behaviour.
func New(maxSessions int, logDir string, audit *auditlog.Logger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		sessions:    make(map[string]*ptysession.Session),
		reserved:    make(map[string]struct{}),
		maxSessions: maxSessions,
		logDir:      logDir,
		audit:       audit,
		logger:      logger,
	}
	if logDir != "" {
		m.manifest = sessionlog.NewManifest(filepath.Join(logDir, "sessions.json"))
	}
	return m
}

// Create starts a new session from cfg and registers it. The registry
// mutex is held only to reserve/insert/remove the slot, never across the
// session's own I/O (spec.md §5).
func (m *Manager) Create(cfg ptysession.Config) (string, error) {
	id, err := m.reserveSlot()
	if err != nil {
		return "", err
	}

	var logw *sessionlog.Writer
	if m.logDir != "" {
		path := sessionlog.PathFor(m.logDir, cfg.Command, id)
		logw, err = sessionlog.Open(path)
		if err != nil {
			m.releaseSlot(id)
			return "", ptyerr.Wrap(ptyerr.ErrIoError, "open session log: %v", err)
		}
	}

	sess, err := ptysession.Start(id, cfg, logw, m.audit, m.logger, m.deregister)
	if err != nil {
		if logw != nil {
			_ = logw.Close()
		}
		m.releaseSlot(id)
		return "", err
	}

	m.mu.Lock()
	delete(m.reserved, id)
	m.sessions[id] = sess
	m.mu.Unlock()

	if m.manifest != nil {
		_ = m.manifest.Add(id, sess.Command)
	}

	return id, nil
}

func (m *Manager) reserveSlot() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions)+len(m.reserved) >= m.maxSessions {
		return "", ptyerr.ErrCapacityExceeded
	}
	for attempt := 0; attempt < 10; attempt++ {
		id, err := ptysession.NewSessionID()
		if err != nil {
			return "", ptyerr.Wrap(ptyerr.ErrIoError, "generate session id: %v", err)
		}
		if _, exists := m.sessions[id]; exists {
			continue
		}
		if _, exists := m.reserved[id]; exists {
			continue
		}
		m.reserved[id] = struct{}{}
		return id, nil
	}
	return "", fmt.Errorf("could not allocate a unique session id")
}

func (m *Manager) releaseSlot(id string) {
	m.mu.Lock()
	delete(m.reserved, id)
	m.mu.Unlock()
}

// deregister removes a session from the registry once it has stopped,
// however the stop was triggered — explicit Remove, idle timeout, or the
// child exiting on its own. It is passed to ptysession.Start as the
// session's onStop callback, so self-initiated stops free their capacity
// slot and drop out of List() the same way an explicit Remove does
// (spec.md §3, testable property #4).
func (m *Manager) deregister(id, reason string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.manifest != nil {
		_ = m.manifest.Remove(id)
	}
}

// Get returns the session with the given ID, or ErrUnknownSession.
func (m *Manager) Get(id string) (*ptysession.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ptyerr.ErrUnknownSession
	}
	return sess, nil
}

// Remove stops the session (if present) and removes it from the
// registry. Stop's teardown invokes the manager's onStop callback
// synchronously before returning, so the registry delete and manifest
// removal have already happened by the time Stop returns here; Remove
// need not repeat them.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ptyerr.ErrUnknownSession
	}

	_ = sess.Stop("explicit stop")
	return nil
}

// List returns a snapshot descriptor for every session currently in the
// registry (spec.md §8 testable property #4: exactly the non-stopped
// set). Self-initiated stops (idle timeout, child exit) deregister
// through the same onStop callback as an explicit Remove, so the
// registry itself should never hold a stopped session; the status
// filter below is a defensive backstop against the narrow window
// between a session flipping to stopped and its callback completing.
func (m *Manager) List() []Descriptor {
	m.mu.Lock()
	sessions := make([]*ptysession.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Descriptor, 0, len(sessions))
	for _, s := range sessions {
		if s.Status() == ptysession.StatusStopped {
			continue
		}
		out = append(out, Descriptor{
			ID:                       s.ID,
			Command:                  s.Command,
			Status:                   s.Status().String(),
			SecondsSinceLastActivity: time.Since(s.LastActivity()).Seconds(),
			BufferLines:              s.BufferLineCount(),
		})
	}
	return out
}

// Shutdown stops every session in parallel, awaits all, and clears the
// registry. Called at process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*ptysession.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*ptysession.Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *ptysession.Session) {
			defer wg.Done()
			_ = s.Stop("manager shutdown")
		}(s)
	}
	wg.Wait()

	if m.manifest != nil {
		_ = m.manifest.Clear()
	}
}
