package scrape

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/3leaps/bucketmeta/pkg/match"
	"github.com/3leaps/bucketmeta/pkg/output"
	"github.com/3leaps/bucketmeta/pkg/provider"
)

// Config configures a Scraper.
type Config struct {
	// Workers bounds concurrent listings, per prefix within a bucket and
	// per bucket in path scrapes. Default: 5
	Workers int

	// RateLimit caps page requests per second across all workers.
	// Zero means unlimited.
	RateLimit float64

	// MaxKeys is the page size hint passed to providers. Zero uses the
	// provider default.
	MaxKeys int
}

// DefaultConfig returns the default scraper configuration.
func DefaultConfig() Config {
	return Config{Workers: 5}
}

// BucketOptions configures ScrapeBucket.
type BucketOptions struct {
	AllVersions bool
	DropFolders bool

	// Output, if set, is the CSV/TSV file to write. Historical scrapes
	// write "Versions-<name>" and "DeleteMarkers-<name>" next to it.
	Output string

	// Delimiter overrides the delimiter inferred from Output's extension.
	Delimiter string
}

// Scraper runs bucket and path-list scrapes against providers obtained
// from an Opener.
//
// A Scraper is safe for concurrent use.
type Scraper struct {
	opener  provider.Opener
	config  Config
	limiter *rate.Limiter
	matcher *match.Matcher
	filter  match.Filter
	logger  *zap.Logger
}

// New creates a scraper. Zero Config fields take their defaults.
func New(opener provider.Opener, cfg Config) *Scraper {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	s := &Scraper{
		opener: opener,
		config: cfg,
		logger: zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s
}

// WithMatcher keeps only keys matched by m. Returns s for chaining.
func (s *Scraper) WithMatcher(m *match.Matcher) *Scraper {
	s.matcher = m
	return s
}

// WithFilter keeps only entries passing f. Returns s for chaining.
func (s *Scraper) WithFilter(f match.Filter) *Scraper {
	s.filter = f
	return s
}

// WithLogger sets the logger. Returns s for chaining.
func (s *Scraper) WithLogger(l *zap.Logger) *Scraper {
	if l != nil {
		s.logger = l
	}
	return s
}

// ScrapeBucket scrapes every prefix of bucket and merges the results.
//
// Nil or empty prefixes scrape the whole bucket. Leading slashes are
// stripped from each prefix. Overlapping prefixes are scraped as given, so
// their common entries appear more than once.
//
// Every returned record has Bucket set and its ETag unquoted. When
// opts.Output is set the delimiter is resolved before any listing, and a
// failed write returns the error without the result.
func (s *Scraper) ScrapeBucket(ctx context.Context, bucket string, prefixes []string, opts BucketOptions) (Result, error) {
	delim, err := output.ResolveDelimiter(opts.Output, opts.Delimiter)
	if err != nil {
		return nil, err
	}

	res, err := s.scrapeBucket(ctx, bucket, NormalizePrefixes(prefixes), opts)
	if err != nil {
		return nil, err
	}

	if opts.Output != "" {
		if _, err := WriteResult(opts.Output, delim, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// scrapeBucket lists prefixes exactly as given.
func (s *Scraper) scrapeBucket(ctx context.Context, bucket string, prefixes []string, opts BucketOptions) (Result, error) {
	p, err := s.opener.Open(ctx, bucket)
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	prefixOpts := PrefixOptions{
		AllVersions: opts.AllVersions,
		DropFolders: opts.DropFolders,
		Matcher:     s.matcher,
		Filter:      s.filter,
		Limiter:     s.limiter,
		MaxKeys:     s.config.MaxKeys,
		Logger:      s.logger.With(zap.String("bucket", bucket)),
	}

	results := make([]Result, len(prefixes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, prefix := range prefixes {
		g.Go(func() error {
			res, err := ScrapePrefix(gctx, p, prefix, prefixOpts)
			if err != nil {
				return fmt.Errorf("scrape bucket %s prefix %q: %w", bucket, prefix, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("Bucket scrape failed", zap.String("bucket", bucket), zap.Error(err))
		return nil, err
	}

	merged := newResult(opts.AllVersions)
	for _, r := range results {
		merged.merge(r)
	}
	merged.each(func(r *Record) {
		r.Bucket = bucket
		r.ETag = NormalizeETag(r.ETag)
	})

	s.logger.Info("Bucket scraped",
		zap.String("bucket", bucket),
		zap.Int("prefixes", len(prefixes)),
		zap.Int("records", merged.Len()))
	return merged, nil
}

// NormalizePrefixes strips leading slashes and maps an empty list to the
// whole bucket.
func NormalizePrefixes(prefixes []string) []string {
	if len(prefixes) == 0 {
		return []string{""}
	}
	out := make([]string, len(prefixes))
	for i, p := range prefixes {
		out[i] = strings.TrimLeft(p, "/")
	}
	return out
}

// OutputPaths returns the files WriteResult writes for res.
//
// Flat results go to path. Historical results go to one file per category,
// named "<Category>-<base>" in path's directory.
func OutputPaths(path string, res Result) []string {
	cats := res.Categories()
	paths := make([]string, len(cats))
	for i, cat := range cats {
		paths[i] = categoryPath(path, cat.Name)
	}
	return paths
}

// WriteResult writes res as delimited rows and returns the files written.
// See OutputPaths for file naming.
func WriteResult(path, delim string, res Result) ([]string, error) {
	var written []string
	for _, cat := range res.Categories() {
		target := categoryPath(path, cat.Name)
		if err := output.WriteRows(target, Rows(cat.Records), delim); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}

func categoryPath(path, category string) string {
	if category == "" {
		return path
	}
	return filepath.Join(filepath.Dir(path), category+"-"+filepath.Base(path))
}
