// Package match filters object keys with doublestar globs and metadata
// constraints, and derives listing prefixes from glob patterns.
package match

import (
	"strings"
)

// globEscapable lists the characters a backslash escapes in a pattern.
const globEscapable = `*?[]{}\`

// NormalizePattern rewrites unescaped backslashes as forward slashes so
// Windows-style patterns ("logs\2024\*.gz") match object keys. Escaped
// glob metacharacters ("\*", "\[") are kept. Slashes are left as written.
func NormalizePattern(pattern string) string {
	if !strings.ContainsRune(pattern, '\\') {
		return pattern
	}

	var b strings.Builder
	b.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
			b.WriteRune('\\')
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		b.WriteRune('/')
	}
	return b.String()
}

// IsHidden reports whether any "/"-separated segment of key starts with a
// dot, e.g. "logs/.tmp/a" or ".keep".
func IsHidden(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
