package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxNameLength is the longest normalized tool name.
const MaxNameLength = 63

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]{0,62}$`)

// ValidName reports whether name is usable as a normalized tool name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// NormalizeName builds the collision-free form of serverName_originalName,
// without a collision suffix.
func NormalizeName(serverName, originalName string) string {
	return truncateMiddle(sanitize(serverName+"_"+originalName), MaxNameLength)
}

// sanitize maps every rune outside [A-Za-z0-9_.-] to '_' and makes sure
// the result starts with a letter or underscore. The result is ASCII.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if isNameChar(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || !isLeadingChar(out[0]) {
		out = "_" + out
	}
	return out
}

func isNameChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	}
	return false
}

func isLeadingChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// truncateMiddle shortens s to max bytes by keeping its head and tail
// joined with '_'. s must be ASCII and max at least 2.
func truncateMiddle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	keep := max - 1
	head := (keep + 1) / 2
	tail := keep - head
	return s[:head] + "_" + s[len(s)-tail:]
}

// withSuffix returns base truncated so that base plus "_n" fits MaxNameLength.
func withSuffix(base string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	return truncateMiddle(base, MaxNameLength-len(suffix)) + suffix
}
