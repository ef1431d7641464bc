// Package scrollback implements the session's bounded, line-oriented
// scrollback: a ring of at most N completed lines plus a pending partial
// line for output not yet terminated by a newline.
//
// It is also where carriage-return overwrite collapsing happens (see
// SPEC_FULL.md §4.1): a bare \r commonly arrives in one PTY read with the
// text that overwrites it arriving in the next, so the buffer — which is
// the component that already tracks the pending partial line across
// calls — is where the two fragments can be reunited and collapsed
// correctly. The buffer is only ever mutated by the session's read pump;
// readers take a snapshot under the session's mutex.
package scrollback

import "strings"

// Buffer is a capacity-bounded ring of completed lines with a trailing
// partial (not yet newline-terminated) line.
type Buffer struct {
	lines           []string
	capacity        int
	partial         string
	totalEverPushed int // monotonic count of completed lines ever pushed, survives eviction
}

// New creates a Buffer holding at most capacity completed lines.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{capacity: capacity}
}

// Append splits text on "\n": the first piece is concatenated onto the
// held partial line, interior pieces become completed lines, and the
// last piece becomes the new partial. Each concatenation point is run
// through collapseCR so an overwrite split across two Append calls still
// collapses correctly.
func (b *Buffer) Append(text string) {
	pieces := strings.Split(text, "\n")

	first := collapseCR(b.partial + pieces[0])
	if len(pieces) == 1 {
		b.partial = first
		return
	}
	b.push(first)

	for i := 1; i < len(pieces)-1; i++ {
		b.push(collapseCR(pieces[i]))
	}
	b.partial = collapseCR(pieces[len(pieces)-1])
}

func (b *Buffer) push(line string) {
	b.lines = append(b.lines, line)
	b.totalEverPushed++
	if b.capacity == 0 {
		b.lines = nil
		return
	}
	if len(b.lines) > b.capacity {
		trim := len(b.lines) - b.capacity
		b.lines = b.lines[trim:]
	}
}

// collapseCR applies carriage-return overwrite semantics: only the text
// after the last bare \r survives, since that is what a real terminal
// would show after the overwrite completes.
func collapseCR(s string) string {
	if idx := strings.LastIndexByte(s, '\r'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// LineCount returns the number of completed lines currently held.
func (b *Buffer) LineCount() int {
	return len(b.lines)
}

// Snapshot returns a monotonic count of completed lines ever pushed,
// suitable for passing to LinesSince later even if lines have since been
// evicted from the ring.
func (b *Buffer) Snapshot() int {
	return b.totalEverPushed
}

// Partial returns the current not-yet-terminated partial line.
func (b *Buffer) Partial() string {
	return b.partial
}

// Tail returns the last n completed lines joined by "\n", with the
// partial line appended if non-empty. A nil n returns the full buffer. n
// <= 0 returns "". n larger than the line count returns everything.
func (b *Buffer) Tail(n *int) string {
	if n != nil && *n <= 0 {
		return ""
	}

	lines := b.lines
	if n != nil && *n < len(lines) {
		lines = lines[len(lines)-*n:]
	}

	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	if b.partial != "" {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(b.partial)
	}
	return sb.String()
}

// Contains reports whether token appears as a substring of any completed
// line or of the partial line. Used by the completion detector to watch
// for a sentinel token without caring which line it lands on.
func (b *Buffer) Contains(token string) bool {
	if strings.Contains(b.partial, token) {
		return true
	}
	for _, line := range b.lines {
		if strings.Contains(line, token) {
			return true
		}
	}
	return false
}

// LinesSince returns the completed lines appended since snapshot (a
// value previously returned by Snapshot), plus the current partial if
// non-empty. Used by RunCommand to extract exactly the output produced
// since the command was submitted.
func (b *Buffer) LinesSince(snapshot int) []string {
	if snapshot < 0 {
		snapshot = 0
	}
	// The ring may have evicted lines since the snapshot was taken; in
	// that case everything currently held postdates the snapshot.
	start := snapshot
	total := b.totalEverPushed
	if start < total-len(b.lines) {
		start = total - len(b.lines)
	}
	offset := start - (total - len(b.lines))
	if offset < 0 {
		offset = 0
	}
	out := append([]string(nil), b.lines[offset:]...)
	if b.partial != "" {
		out = append(out, b.partial)
	}
	return out
}
