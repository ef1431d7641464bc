package ptysession

import (
	"errors"
	"testing"

	"github.com/shawnabu/pty-mcp/internal/ptyerr"
)

func TestWithDefaults(t *testing.T) {
	cfg, err := Config{Command: "/bin/bash"}.WithDefaults()
	if err != nil {
		t.Fatalf("WithDefaults: %v", err)
	}
	if cfg.IdleTimeoutSecs != DefaultIdleTimeoutSeconds {
		t.Errorf("IdleTimeoutSecs = %d, want %d", cfg.IdleTimeoutSecs, DefaultIdleTimeoutSeconds)
	}
	if cfg.BufferLines != DefaultBufferLines {
		t.Errorf("BufferLines = %d, want %d", cfg.BufferLines, DefaultBufferLines)
	}
	if cfg.SentinelTemplate != DefaultSentinelTemplate {
		t.Errorf("SentinelTemplate = %q, want %q", cfg.SentinelTemplate, DefaultSentinelTemplate)
	}
	if cfg.Rows != DefaultRows || cfg.Cols != DefaultCols {
		t.Errorf("Rows/Cols = %d/%d, want %d/%d", cfg.Rows, cfg.Cols, DefaultRows, DefaultCols)
	}
}

func TestWithDefaultsTokenisesWhitespaceCommand(t *testing.T) {
	cfg, err := Config{Command: "python3 -u -i"}.WithDefaults()
	if err != nil {
		t.Fatalf("WithDefaults: %v", err)
	}
	if cfg.Command != "python3" {
		t.Errorf("Command = %q, want python3", cfg.Command)
	}
	if want := []string{"-u", "-i"}; !equalStrings(cfg.Args, want) {
		t.Errorf("Args = %v, want %v", cfg.Args, want)
	}
}

func TestWithDefaultsDoesNotTokeniseWhenArgsGiven(t *testing.T) {
	cfg, err := Config{Command: "python3 -u", Args: []string{"-i"}}.WithDefaults()
	if err != nil {
		t.Fatalf("WithDefaults: %v", err)
	}
	if cfg.Command != "python3 -u" {
		t.Errorf("Command should be left untouched when Args is already set, got %q", cfg.Command)
	}
}

func TestWithDefaultsRejectsEmptyCommand(t *testing.T) {
	if _, err := (Config{}).WithDefaults(); !errors.Is(err, ptyerr.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateSentinelTemplate(t *testing.T) {
	cases := []struct {
		template string
		wantErr  bool
	}{
		{"echo {sentinel}", false},
		{"print('{sentinel}')", false},
		{"echo hello", true},                 // zero occurrences
		{"echo {sentinel} {sentinel}", true}, // more than one
	}
	for _, c := range cases {
		err := ValidateSentinelTemplate(c.template)
		if c.wantErr && !errors.Is(err, ptyerr.ErrInvalidSentinel) {
			t.Errorf("ValidateSentinelTemplate(%q) = %v, want ErrInvalidSentinel", c.template, err)
		}
		if !c.wantErr && err != nil {
			t.Errorf("ValidateSentinelTemplate(%q) = %v, want nil", c.template, err)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
