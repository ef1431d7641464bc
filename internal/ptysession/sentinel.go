package ptysession

import (
	"crypto/rand"
	"strings"
)

const sentinelTokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newSentinelToken generates a 32-character alphanumeric random token, per
// spec.md §4.3: fresh per run_command call, cryptographically random so
// user-submitted text can't predict and forge a false completion signal.
func newSentinelToken() (string, error) {
	return randomAlphanumeric(32)
}

// NewSessionID generates a 12-hex-character session identifier, per
// spec.md §3.
func NewSessionID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 12)
	for i, c := range b {
		out[2*i] = hex[c>>4]
		out[2*i+1] = hex[c&0x0F]
	}
	return string(out), nil
}

func randomAlphanumeric(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(n)
	for _, c := range b {
		sb.WriteByte(sentinelTokenAlphabet[int(c)%len(sentinelTokenAlphabet)])
	}
	return sb.String(), nil
}
