package match

import (
	"sort"
	"strings"
)

// DerivePrefix returns the listing prefix implied by a glob pattern: the
// text before the first unescaped metacharacter, cut back to the last
// complete segment. Escaped metacharacters are literal and kept unescaped.
//
//	"logs/2024/**/*.gz"  → "logs/2024/"
//	"logs/app-*.log"     → "logs/"
//	"*.json"             → ""
//	"logs/a.txt"         → "logs/a.txt"
//	`logs/\[old\]/*.gz`  → "logs/[old]/"
func DerivePrefix(pattern string) string {
	pattern = NormalizePattern(pattern)

	i := firstMeta(pattern)
	if i < 0 {
		return unescape(pattern)
	}
	cut := strings.LastIndex(pattern[:i], "/")
	if cut < 0 {
		return ""
	}
	return unescape(pattern[:cut+1])
}

// IsGlobPattern reports whether pattern has an unescaped metacharacter.
func IsGlobPattern(pattern string) bool {
	return firstMeta(NormalizePattern(pattern)) >= 0
}

// firstMeta returns the index of the first unescaped * ? [ or {, or -1.
func firstMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			if i+1 < len(pattern) && strings.IndexByte(globEscapable, pattern[i+1]) >= 0 {
				i++
			}
		case '*', '?', '[', '{':
			return i
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte(globEscapable, s[i+1]) >= 0 {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// DerivePrefixes derives a prefix from each pattern, drops prefixes covered
// by a shorter one, and returns the rest sorted. A pattern with no static
// prefix yields [""], a whole-bucket listing.
func DerivePrefixes(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	prefixes := make([]string, len(patterns))
	for i, p := range patterns {
		prefixes[i] = DerivePrefix(p)
	}
	return dedupePrefixes(prefixes)
}

func dedupePrefixes(prefixes []string) []string {
	if len(prefixes) == 0 {
		return nil
	}
	sorted := append([]string(nil), prefixes...)
	sort.Strings(sorted)

	// In sorted order a covering prefix precedes everything it covers.
	out := []string{sorted[0]}
	for _, p := range sorted[1:] {
		if !strings.HasPrefix(p, out[len(out)-1]) {
			out = append(out, p)
		}
	}
	return out
}

// CommonPathPrefix returns the longest run of whole "/"-separated segments
// shared by every key, without a trailing slash. Segments are compared as
// written, empty ones included, so the result is always a string prefix of
// every key.
//
//	["x/a.txt", "x/y/b.txt"]   → "x"
//	["x/a.txt"]                → "x/a.txt"
//	["x/a.txt", "xy/b.txt"]    → ""
//	["a//b/c", "a//b/d"]       → "a//b"
//	["/x/a.txt", "/x/b.txt"]   → "/x"
func CommonPathPrefix(keys []string) string {
	if len(keys) == 0 {
		return ""
	}

	common := strings.Split(keys[0], "/")
	for _, k := range keys[1:] {
		segs := strings.Split(k, "/")
		n := 0
		for n < len(common) && n < len(segs) && common[n] == segs[n] {
			n++
		}
		common = common[:n]
		if n == 0 {
			break
		}
	}
	return strings.Join(common, "/")
}
