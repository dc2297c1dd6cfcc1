// Package identifier normalizes and extracts recipient tax identifiers (NIT)
// from free page text.
package identifier

import (
	"regexp"
	"strings"
)

const (
	// MinLength and MaxLength bound the digit count of a canonical identifier.
	MinLength = 7
	MaxLength = 12
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Normalize strips every non-digit character, keeping digits in order.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsEmail reports whether s has the basic local@domain.tld shape.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}
