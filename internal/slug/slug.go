// Package slug turns free-form keys into lowercase snake_case.
package slug

import (
	"regexp"
	"strings"
	"unicode"
)

var reKey = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

// IsKey reports whether s is already a snake_case key such as "order_no".
func IsKey(s string) bool {
	return reKey.MatchString(s)
}

// Key converts s to snake_case. Case humps ("orderNo") and runs of anything
// outside [a-z0-9] become a single '_'; leading and trailing '_' are dropped.
func Key(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	pendingSep := false
	var prev rune
	for _, r := range strings.TrimSpace(s) {
		orig := r
		switch {
		case r < unicode.MaxASCII && (unicode.IsLower(r) || unicode.IsDigit(r)):
		case r < unicode.MaxASCII && unicode.IsUpper(r):
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				pendingSep = true
			}
			r = unicode.ToLower(r)
		default:
			pendingSep = true
			prev = orig
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
		prev = orig
	}
	return b.String()
}
