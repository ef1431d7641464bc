package ptysession

import (
	"strings"

	"github.com/google/shlex"

	"github.com/shawnabu/pty-mcp/internal/ptyerr"
)

// Defaults for fields left zero in a Config, per spec.md §3/§6.
const (
	DefaultIdleTimeoutSeconds = 86400
	DefaultBufferLines        = 1000
	DefaultSentinelTemplate   = "echo {sentinel}"
	DefaultRunCommandTimeout  = 1800
	DefaultRows               = 24
	DefaultCols               = 80
)

// Config is a session's immutable-once-started configuration.
type Config struct {
	Command          string
	Args             []string
	Cwd              string
	IdleTimeoutSecs  int
	BufferLines      int
	SentinelTemplate string
	Rows, Cols       int
	Env              map[string]string
}

// WithDefaults returns a copy of c with zero-valued fields replaced by
// spec.md's documented defaults, and the command string tokenised per
// spec.md §3 when Args is empty and Command contains whitespace.
func (c Config) WithDefaults() (Config, error) {
	if c.IdleTimeoutSecs == 0 {
		c.IdleTimeoutSecs = DefaultIdleTimeoutSeconds
	}
	if c.BufferLines == 0 {
		c.BufferLines = DefaultBufferLines
	}
	if c.SentinelTemplate == "" {
		c.SentinelTemplate = DefaultSentinelTemplate
	}
	if c.Rows == 0 {
		c.Rows = DefaultRows
	}
	if c.Cols == 0 {
		c.Cols = DefaultCols
	}
	if err := ValidateSentinelTemplate(c.SentinelTemplate); err != nil {
		return c, err
	}

	if len(c.Args) == 0 && strings.ContainsAny(c.Command, " \t") {
		tokens, err := shlex.Split(c.Command)
		if err != nil {
			return c, ptyerr.Wrap(ptyerr.ErrInvalidConfig, "tokenise command %q: %v", c.Command, err)
		}
		if len(tokens) == 0 {
			return c, ptyerr.Wrap(ptyerr.ErrInvalidConfig, "command %q tokenised to nothing", c.Command)
		}
		c.Command = tokens[0]
		c.Args = tokens[1:]
	}
	if c.Command == "" {
		return c, ptyerr.Wrap(ptyerr.ErrInvalidConfig, "command is required")
	}
	return c, nil
}

// ValidateSentinelTemplate enforces spec.md §6/§9: the template must
// contain the literal substring "{sentinel}" exactly once. Zero
// occurrences can never signal completion; more than one is rejected per
// spec.md §9's open question, resolved conservatively (see DESIGN.md).
func ValidateSentinelTemplate(template string) error {
	const token = "{sentinel}"
	if n := strings.Count(template, token); n != 1 {
		return ptyerr.Wrap(ptyerr.ErrInvalidSentinel, "template must contain %q exactly once, found %d", token, n)
	}
	return nil
}
