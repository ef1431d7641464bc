// Package toolserver is the thin façade mapping the seven named tool
// operations (spec.md §6) plus loosely-typed argument maps onto
// internal/manager and internal/ptysession calls. It validates and
// converts, reporting InvalidConfig for missing or mistyped fields
// (spec.md §9 "Dynamic argument maps from the tool layer").
package toolserver

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shawnabu/pty-mcp/internal/manager"
	"github.com/shawnabu/pty-mcp/internal/ptyerr"
	"github.com/shawnabu/pty-mcp/internal/ptysession"
)

// Server exposes the tool operations as methods taking and returning
// map[string]any, the shape the external dispatch layer hands this core
// (spec.md §1's "thin glue" boundary).
type Server struct {
	mgr *manager.Manager
}

// New wraps mgr as a tool server.
func New(mgr *manager.Manager) *Server {
	return &Server{mgr: mgr}
}

// reply stamps result with a fresh correlation id (request_id) before
// returning it to the caller. This is transport-level bookkeeping the
// stable tool-operation contract (spec.md §6) doesn't require of any
// individual field, but every call passing through this façade gets one
// so the external dispatch layer can correlate a request with whatever
// it logs or replies over its own transport.
func reply(result map[string]any) map[string]any {
	result["request_id"] = uuid.NewString()
	return result
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// StartSession implements the start_session operation.
func (s *Server) StartSession(args map[string]any) (map[string]any, error) {
	cfg := ptysession.Config{Command: defaultShell()}

	if v, ok := args["command"]; ok {
		str, ok := v.(string)
		if !ok {
			return nil, invalidConfig("command must be a string")
		}
		cfg.Command = str
	}
	if v, ok := args["args"]; ok {
		argv, err := stringSlice(v)
		if err != nil {
			return nil, invalidConfig("args: %v", err)
		}
		cfg.Args = argv
	}
	if v, ok := args["cwd"]; ok {
		str, ok := v.(string)
		if !ok {
			return nil, invalidConfig("cwd must be a string")
		}
		cfg.Cwd = str
	}
	if v, ok := args["timeout_session"]; ok {
		n, err := intArg(v)
		if err != nil {
			return nil, invalidConfig("timeout_session: %v", err)
		}
		cfg.IdleTimeoutSecs = n
	}
	if v, ok := args["buffer_size"]; ok {
		n, err := intArg(v)
		if err != nil {
			return nil, invalidConfig("buffer_size: %v", err)
		}
		cfg.BufferLines = n
	}
	if v, ok := args["sentinel_command"]; ok {
		str, ok := v.(string)
		if !ok {
			return nil, invalidConfig("sentinel_command must be a string")
		}
		cfg.SentinelTemplate = str
	}

	id, err := s.mgr.Create(cfg)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"session_id": id}), nil
}

// RunCommand implements the run_command operation.
func (s *Server) RunCommand(args map[string]any) (map[string]any, error) {
	id, err := stringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}
	timeout := ptysession.DefaultRunCommandTimeout
	if v, ok := args["timeout"]; ok {
		n, err := intArg(v)
		if err != nil {
			return nil, invalidConfig("timeout: %v", err)
		}
		timeout = n
	}

	sess, err := s.mgr.Get(id)
	if err != nil {
		return nil, err
	}
	res, err := sess.RunCommand(command, time.Duration(timeout)*time.Second)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"output": res.Output, "timed_out": res.TimedOut}), nil
}

// SendKeys implements the send_keys operation.
func (s *Server) SendKeys(args map[string]any) (map[string]any, error) {
	id, err := stringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	keys, err := stringArg(args, "keys")
	if err != nil {
		return nil, err
	}
	sess, err := s.mgr.Get(id)
	if err != nil {
		return nil, err
	}
	if err := sess.SendKeys([]byte(keys)); err != nil {
		return nil, err
	}
	return reply(map[string]any{"ok": true}), nil
}

// GetBuffer implements the get_buffer operation.
func (s *Server) GetBuffer(args map[string]any) (map[string]any, error) {
	id, err := stringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	sess, err := s.mgr.Get(id)
	if err != nil {
		return nil, err
	}
	var n *int
	if v, ok := args["lines"]; ok {
		parsed, err := intArg(v)
		if err != nil {
			return nil, invalidConfig("lines: %v", err)
		}
		n = &parsed
	}
	return reply(map[string]any{"output": sess.GetBuffer(n)}), nil
}

// SetSentinel implements the set_sentinel operation.
func (s *Server) SetSentinel(args map[string]any) (map[string]any, error) {
	id, err := stringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	template, err := stringArg(args, "sentinel_command")
	if err != nil {
		return nil, err
	}
	sess, err := s.mgr.Get(id)
	if err != nil {
		return nil, err
	}
	if err := sess.SetSentinel(template); err != nil {
		return nil, err
	}
	return reply(map[string]any{"ok": true}), nil
}

// StopSession implements the stop_session operation.
func (s *Server) StopSession(args map[string]any) (map[string]any, error) {
	id, err := stringArg(args, "session_id")
	if err != nil {
		return nil, err
	}
	if err := s.mgr.Remove(id); err != nil {
		return nil, err
	}
	return reply(map[string]any{"ok": true}), nil
}

// ListSessions implements the list_sessions operation.
func (s *Server) ListSessions(map[string]any) (map[string]any, error) {
	descs := s.mgr.List()
	sessions := make([]map[string]any, 0, len(descs))
	for _, d := range descs {
		sessions = append(sessions, map[string]any{
			"id":                          d.ID,
			"command":                     d.Command,
			"status":                      d.Status,
			"seconds_since_last_activity": d.SecondsSinceLastActivity,
			"buffer_lines":                d.BufferLines,
		})
	}
	return reply(map[string]any{"sessions": sessions}), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", invalidConfig("missing required field %q", key)
	}
	str, ok := v.(string)
	if !ok {
		return "", invalidConfig("field %q must be a string", key)
	}
	return str, nil
}

func intArg(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("must be a number, got %T", v)
	}
}

func stringSlice(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		if strs, ok := v.([]string); ok {
			return strs, nil
		}
		return nil, fmt.Errorf("must be a list of strings, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("list element must be a string, got %T", item)
		}
		out = append(out, str)
	}
	return out, nil
}

func invalidConfig(format string, args ...any) error {
	return ptyerr.Wrap(ptyerr.ErrInvalidConfig, format, args...)
}
