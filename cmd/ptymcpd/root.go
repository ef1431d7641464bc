package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/shawnabu/pty-mcp/internal/config"
	"github.com/shawnabu/pty-mcp/internal/version"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ptymcpd",
		Short:   "PTY session core exposed as a tool-call protocol",
		Version: version.DisplayVersion(),
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.ptymcp/config.yaml)")

	root.AddCommand(newServeCmd(), newListCmd())
	return root
}

// loadConfig resolves the process configuration, honoring --config, and
// applies spec.md §6's documented defaults and fatal-log_dir validation.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, &configError{err}
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, &configError{err}
	}
	return cfg, nil
}

// configError marks an error as a configuration-layer failure so
// exitCodeFor can map it to exit code 2 (spec.md §6 exit codes).
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// exitCodeFor maps a top-level command error to spec.md §6's process
// exit codes: 0 normal, 1 unhandled core failure, 2 configuration error.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
