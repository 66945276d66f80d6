package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher narrows scraped keys with doublestar include/exclude globs.
//
// A key matches when it matches at least one include pattern (or no
// includes were given) and no exclude pattern. Safe for concurrent use.
type Matcher struct {
	includes      []string
	excludes      []string
	prefixes      []string
	excludeHidden bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are patterns a key must match (any). Empty matches every key.
	Includes []string

	// Excludes are patterns a key must not match (any).
	Excludes []string

	// ExcludeHidden drops keys with a path segment starting with '.'.
	ExcludeHidden bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New compiles cfg. Patterns are normalized with NormalizePattern.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	m := &Matcher{
		includes:      includes,
		excludes:      excludes,
		excludeHidden: cfg.ExcludeHidden,
	}
	if len(includes) > 0 {
		m.prefixes = DerivePrefixes(includes)
	}
	return m, nil
}

// IsEmpty reports whether cfg would match every key.
func (cfg Config) IsEmpty() bool {
	return len(cfg.Includes) == 0 && len(cfg.Excludes) == 0 && !cfg.ExcludeHidden
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		normalized := NormalizePattern(p)
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, normalized)
	}
	return out, nil
}

// Match reports whether key passes the matcher. Keys are matched as-is.
func (m *Matcher) Match(key string) bool {
	if m.excludeHidden && IsHidden(key) {
		return false
	}

	if len(m.includes) > 0 && !anyMatch(m.includes, key) {
		return false
	}
	return !anyMatch(m.excludes, key)
}

// Prefixes returns the deduplicated listing prefixes derived from the
// include patterns, or nil when there are no includes. An empty string
// in the result means a full listing is required.
func (m *Matcher) Prefixes() []string {
	return m.prefixes
}

// IncludePatterns returns the normalized include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the normalized exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

func anyMatch(patterns []string, key string) bool {
	for _, p := range patterns {
		// Patterns were validated in New, so Match cannot fail.
		if ok, _ := doublestar.Match(p, key); ok {
			return true
		}
	}
	return false
}
