package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shawnabu/pty-mcp/internal/auditlog"
	"github.com/shawnabu/pty-mcp/internal/manager"
	"github.com/shawnabu/pty-mcp/internal/toolserver"
)

// request is one line of the stdio tool protocol: {"op": "...", "args": {...}}.
// spec.md §1 explicitly scopes protocol-transport framing out of the
// core; this is the minimal thin transport cmd/ptymcpd supplies around
// it, not a JSON-RPC implementation.
type request struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args"`
}

type response struct {
	OK     bool           `json:"ok"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the PTY session tool protocol over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(os.Stdin, os.Stdout)
		},
	}
}

func runServe(in io.Reader, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	audit := auditlog.New(cfg.LogDir != "", auditPath(cfg.LogDir), "ptymcpd")
	defer audit.Close()

	mgr := manager.New(cfg.MaxSessions, cfg.LogDir, audit, logger)
	defer mgr.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		mgr.Shutdown()
		os.Exit(0)
	}()

	srv := toolserver.New(mgr)
	dispatch := dispatchTable(srv)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(response{OK: false, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}
		handler, ok := dispatch[req.Op]
		if !ok {
			_ = enc.Encode(response{OK: false, Error: fmt.Sprintf("unknown op %q", req.Op)})
			continue
		}
		result, err := handler(req.Args)
		if err != nil {
			logger.Warn("op failed", "op", req.Op, "error", err)
			_ = enc.Encode(response{OK: false, Error: err.Error()})
			continue
		}
		_ = enc.Encode(response{OK: true, Result: result})
	}
	return scanner.Err()
}

func dispatchTable(srv *toolserver.Server) map[string]func(map[string]any) (map[string]any, error) {
	return map[string]func(map[string]any) (map[string]any, error){
		"start_session": srv.StartSession,
		"run_command":   srv.RunCommand,
		"send_keys":     srv.SendKeys,
		"get_buffer":    srv.GetBuffer,
		"set_sentinel":  srv.SetSentinel,
		"stop_session":  srv.StopSession,
		"list_sessions": srv.ListSessions,
	}
}

func auditPath(logDir string) string {
	if logDir == "" {
		return ""
	}
	return logDir + "/audit.jsonl"
}
