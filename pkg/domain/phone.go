package domain

import (
	"strings"

	"github.com/harunnryd/voxa/pkg/errorsx"
)

// NormalizeNumber strips formatting and checks the E.164 shape (+ and 8-15 digits).
func NormalizeNumber(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errorsx.Invalid("phone_number", "required")
	}
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", errorsx.Invalid("phone_number", "unexpected character "+string(r))
		}
	}
	out := b.String()
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	digits := len(out) - 1
	if digits < 8 || digits > 15 {
		return "", errorsx.Invalid("phone_number", "must have 8 to 15 digits")
	}
	return out, nil
}

// CountryCodeFor is the default country code recorded for imported numbers:
// the first two characters of the number, e.g. "+1".
func CountryCodeFor(number string) string {
	if len(number) < 2 {
		return number
	}
	return number[:2]
}
