// Package symbol handles instrument symbol parsing and validation for the
// stock lists a session is created with.
package symbol

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/papertrade/session-engine/internal/model"
)

// MaxPerSession caps the number of instruments one session may carry.
const MaxPerSession = 32

// symbolRegex matches an upper-case ticker: one letter followed by up to
// nine letters, digits, dots or dashes. Example: ACME, BRK.B, X-1
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// Normalize trims and upper-cases a raw symbol.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Validate reports whether s is a well-formed, already normalized symbol.
func Validate(s string) error {
	if !symbolRegex.MatchString(s) {
		return fmt.Errorf("%w: %q", model.ErrInvalidSymbol, s)
	}
	return nil
}

// ParseList normalizes and validates a stock list, dropping duplicates while
// keeping first-seen order.
func ParseList(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: stock_list", model.ErrMissingField)
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s := Normalize(r)
		if err := Validate(s); err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) > MaxPerSession {
		return nil, fmt.Errorf("%w: at most %d stocks per group", model.ErrInvalidSymbol, MaxPerSession)
	}
	return out, nil
}
