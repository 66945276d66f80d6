package match

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Entry is the listing metadata a Filter sees. Size is nil for delete
// markers.
type Entry struct {
	Key          string
	Size         *int64
	LastModified time.Time
}

// Filter decides whether a listed entry is kept.
type Filter interface {
	Match(e Entry) bool
	String() string
}

// FilterConfig holds metadata constraints from a job file or CLI flags.
// Empty fields impose no constraint.
type FilterConfig struct {
	// MinSize and MaxSize are inclusive, e.g. "1KB", "100MiB", "4096".
	MinSize string `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize string `json:"max_size,omitempty" yaml:"max_size,omitempty"`

	// ModifiedAfter is inclusive and ModifiedBefore exclusive. Both accept
	// "2024-01-15" or RFC 3339.
	ModifiedAfter  string `json:"modified_after,omitempty" yaml:"modified_after,omitempty"`
	ModifiedBefore string `json:"modified_before,omitempty" yaml:"modified_before,omitempty"`

	// KeyRegex is applied to keys after glob matching.
	KeyRegex string `json:"key_regex,omitempty" yaml:"key_regex,omitempty"`
}

// IsEmpty reports whether cfg sets no constraint.
func (cfg FilterConfig) IsEmpty() bool {
	return cfg == FilterConfig{}
}

var (
	ErrInvalidSize  = errors.New("invalid size value")
	ErrInvalidDate  = errors.New("invalid date value")
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// NewFilter builds the AND of every constraint in cfg. It returns nil when
// cfg is empty.
func NewFilter(cfg FilterConfig) (Filter, error) {
	var all Filters

	if cfg.MinSize != "" || cfg.MaxSize != "" {
		f, err := newSizeFilter(cfg.MinSize, cfg.MaxSize)
		if err != nil {
			return nil, err
		}
		all = append(all, f)
	}
	if cfg.ModifiedAfter != "" || cfg.ModifiedBefore != "" {
		f, err := newDateFilter(cfg.ModifiedAfter, cfg.ModifiedBefore)
		if err != nil {
			return nil, err
		}
		all = append(all, f)
	}
	if cfg.KeyRegex != "" {
		re, err := regexp.Compile(cfg.KeyRegex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
		}
		all = append(all, regexFilter{re: re})
	}

	if len(all) == 0 {
		return nil, nil
	}
	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

// Filters keeps an entry only when every member keeps it.
type Filters []Filter

func (fs Filters) Match(e Entry) bool {
	for _, f := range fs {
		if !f.Match(e) {
			return false
		}
	}
	return true
}

func (fs Filters) String() string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}

// sizeFilter bounds are -1 when unset. Entries without a size pass.
type sizeFilter struct {
	min, max int64
}

func newSizeFilter(minRaw, maxRaw string) (sizeFilter, error) {
	f := sizeFilter{min: -1, max: -1}
	var err error
	if minRaw != "" {
		if f.min, err = ParseSize(minRaw); err != nil {
			return f, fmt.Errorf("min size: %w", err)
		}
	}
	if maxRaw != "" {
		if f.max, err = ParseSize(maxRaw); err != nil {
			return f, fmt.Errorf("max size: %w", err)
		}
	}
	if f.min >= 0 && f.max >= 0 && f.min > f.max {
		return f, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, f.min, f.max)
	}
	return f, nil
}

func (f sizeFilter) Match(e Entry) bool {
	if e.Size == nil {
		return true
	}
	size := *e.Size
	return (f.min < 0 || size >= f.min) && (f.max < 0 || size <= f.max)
}

func (f sizeFilter) String() string {
	switch {
	case f.min >= 0 && f.max >= 0:
		return fmt.Sprintf("size %s..%s", FormatSize(f.min), FormatSize(f.max))
	case f.min >= 0:
		return "size >= " + FormatSize(f.min)
	default:
		return "size <= " + FormatSize(f.max)
	}
}

// dateFilter bounds are zero when unset.
type dateFilter struct {
	after, before time.Time
}

func newDateFilter(afterRaw, beforeRaw string) (dateFilter, error) {
	var f dateFilter
	var err error
	if afterRaw != "" {
		if f.after, err = ParseDate(afterRaw); err != nil {
			return f, fmt.Errorf("modified after: %w", err)
		}
	}
	if beforeRaw != "" {
		if f.before, err = ParseDate(beforeRaw); err != nil {
			return f, fmt.Errorf("modified before: %w", err)
		}
	}
	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return f, fmt.Errorf("%w: after (%s) is not before (%s)", ErrInvalidDate,
			f.after.Format(time.RFC3339), f.before.Format(time.RFC3339))
	}
	return f, nil
}

func (f dateFilter) Match(e Entry) bool {
	if !f.after.IsZero() && e.LastModified.Before(f.after) {
		return false
	}
	return f.before.IsZero() || e.LastModified.Before(f.before)
}

func (f dateFilter) String() string {
	const day = "2006-01-02"
	switch {
	case !f.after.IsZero() && !f.before.IsZero():
		return fmt.Sprintf("modified %s..%s", f.after.Format(day), f.before.Format(day))
	case !f.after.IsZero():
		return "modified since " + f.after.Format(day)
	default:
		return "modified before " + f.before.Format(day)
	}
}

type regexFilter struct {
	re *regexp.Regexp
}

func (f regexFilter) Match(e Entry) bool { return f.re.MatchString(e.Key) }

func (f regexFilter) String() string { return "key ~ " + f.re.String() }

// Size units. KB/MB/GB/TB are base 10; KiB/MiB/GiB/TiB are base 2.
const (
	KB int64 = 1000
	MB       = 1000 * KB
	GB       = 1000 * MB
	TB       = 1000 * GB

	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
	TiB       = 1024 * GiB
)

var sizeUnits = map[string]int64{
	"": 1, "B": 1,
	"K": KB, "KB": KB, "M": MB, "MB": MB, "G": GB, "GB": GB, "T": TB, "TB": TB,
	"KI": KiB, "KIB": KiB, "MI": MiB, "MIB": MiB, "GI": GiB, "GIB": GiB, "TI": TiB, "TIB": TiB,
}

// ParseSize parses a byte count with an optional case-insensitive unit:
// "1024", "1.5KB", "100 MiB".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	numEnd := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if numEnd == -1 {
		numEnd = len(s)
	}
	if numEnd == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	num := s[:numEnd]
	unit := strings.ToUpper(strings.TrimSpace(s[numEnd:]))
	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, unit)
	}

	if strings.Contains(num, ".") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
		}
		bytes := f * float64(mult)
		if bytes >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
		}
		return int64(bytes), nil
	}

	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	if n > uint64(math.MaxInt64/mult) {
		return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
	}
	return int64(n) * mult, nil
}

// FormatSize renders bytes with base-2 units.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= TiB:
		return fmt.Sprintf("%.1fTiB", float64(bytes)/float64(TiB))
	case bytes >= GiB:
		return fmt.Sprintf("%.1fGiB", float64(bytes)/float64(GiB))
	case bytes >= MiB:
		return fmt.Sprintf("%.1fMiB", float64(bytes)/float64(MiB))
	case bytes >= KiB:
		return fmt.Sprintf("%.1fKiB", float64(bytes)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// ParseDate parses "2024-01-15" (midnight UTC) or an RFC 3339 timestamp,
// normalized to UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
