package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/shawnabu/pty-mcp/internal/sessionlog"
)

// newListCmd prints the sessions currently recorded in log_dir's
// sessions.json manifest (internal/sessionlog.Manifest): the
// cross-process view of live sessions, since a serve process holds its
// in-memory registry only for its own lifetime.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions recorded in the configured log_dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.LogDir == "" {
				fmt.Println("no log_dir configured; nothing to list")
				return nil
			}
			manifest := sessionlog.NewManifest(filepath.Join(cfg.LogDir, "sessions.json"))
			entries, err := manifest.List()
			if err != nil {
				return err
			}
			printEntries(entries)
			return nil
		},
	}
}

func printEntries(entries []sessionlog.ManifestEntry) {
	if len(entries) == 0 {
		fmt.Println("No sessions.")
		return
	}

	output := termenv.NewOutput(os.Stdout)
	colorize := isatty.IsTerminal(os.Stdout.Fd())

	header := fmt.Sprintf("%-14s %-20s %-10s %s", "ID", "COMMAND", "AGE", "LOG FILE")
	if colorize {
		header = output.String(header).Bold().String()
	}
	fmt.Println(header)

	for _, e := range entries {
		age := time.Since(e.StartedAt).Round(time.Second)
		fmt.Printf("%-14s %-20s %-10s %s\n", e.ID, e.Command, age, e.LogFile)
	}
}
