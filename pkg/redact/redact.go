package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers inside free text (utterances, replies).
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Number masks a caller number for log fields, keeping the country prefix and last 4 digits.
func Number(n string) string {
	n = strings.TrimSpace(n)
	if !enabled.Load() || len(n) <= 6 {
		return n
	}
	head := 2
	if !strings.HasPrefix(n, "+") {
		head = 1
	}
	return n[:head] + strings.Repeat("*", len(n)-head-4) + n[len(n)-4:]
}
