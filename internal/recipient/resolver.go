// Package recipient turns free-text and spreadsheet input into canonical
// phone numbers of the form "+<country code><national number>".
package recipient

import (
	"strings"

	"github.com/cuongbtq/bulksend/internal/domain"
)

// Rules configure normalization and spreadsheet extraction.
type Rules struct {
	// CountryCode is prepended to national numbers, and numbers already
	// starting with it are kept whole.
	CountryCode string
	// MinDigits is the shortest accepted digit string, and also the length
	// of the national number kept from longer input.
	MinDigits int
	// SheetColumn names the header holding numbers. Empty means the first
	// non-empty cell of each row.
	SheetColumn string
	// SheetNumericOnly drops sheet cells that are not plain digits.
	SheetNumericOnly bool
}

// DefaultRules match the Indian numbering the tool was built for.
func DefaultRules() Rules {
	return Rules{
		CountryCode:      "91",
		MinDigits:        10,
		SheetNumericOnly: true,
	}
}

// Resolver normalizes and deduplicates recipients.
type Resolver struct {
	rules Rules
}

// NewResolver creates a resolver; zero fields fall back to DefaultRules.
func NewResolver(rules Rules) *Resolver {
	def := DefaultRules()
	if rules.CountryCode == "" {
		rules.CountryCode = def.CountryCode
	}
	if rules.MinDigits <= 0 {
		rules.MinDigits = def.MinDigits
	}
	return &Resolver{rules: rules}
}

// Rules returns the effective rules.
func (r *Resolver) Rules() Rules {
	return r.rules
}

// Normalize converts one raw identifier to canonical form. It reports false
// when fewer than MinDigits digits remain.
func (r *Resolver) Normalize(raw string) (string, bool) {
	digits := stripNonDigits(raw)
	if len(digits) < r.rules.MinDigits {
		return "", false
	}
	if strings.HasPrefix(digits, r.rules.CountryCode) {
		return "+" + digits, true
	}
	return "+" + r.rules.CountryCode + digits[len(digits)-r.rules.MinDigits:], true
}

// Resolve merges every input list, normalizes, and drops duplicates while
// keeping first-seen order.
func (r *Resolver) Resolve(inputs ...[]string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for _, list := range inputs {
		for _, raw := range list {
			n, ok := r.Normalize(raw)
			if !ok {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}

	if len(out) == 0 {
		return nil, domain.ErrNoValidNumbers
	}
	return out, nil
}

// ParseList splits a comma-separated list. Blank input yields nil.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// JIDUser returns the JID user part of a canonical number: the digits
// without "+".
func JIDUser(number string) string {
	return strings.TrimPrefix(number, "+")
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
