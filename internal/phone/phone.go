// Package phone is the single place where phone numbers are canonicalized.
// Every phone entering the system (booking page, dashboard) passes through
// Normalize before lookup or storage, so one client never splits into two
// rows because of formatting.
package phone

import (
	"fmt"
	"strings"
)

const (
	minDigits = 8
	maxDigits = 15 // E.164 upper bound
)

// Normalize strips separators and returns the number as "+<digits>" when a
// country prefix is present, or bare digits otherwise.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("phone is empty")
	}

	plus := strings.HasPrefix(raw, "+")
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '+':
			// separators and the leading plus handled above
		default:
			return "", fmt.Errorf("phone contains invalid character %q", r)
		}
	}

	digits := b.String()
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("phone must have between %d and %d digits", minDigits, maxDigits)
	}
	if plus {
		return "+" + digits, nil
	}
	return digits, nil
}
