package scrape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/bucketmeta/pkg/match"
	"github.com/3leaps/bucketmeta/pkg/output"
)

// ErrMalformedPath is returned for object paths not of the form
// scheme://bucket/key.
var ErrMalformedPath = errors.New("malformed object path")

// PathOptions configures ScrapePaths. Fields mirror BucketOptions.
type PathOptions struct {
	AllVersions bool
	DropFolders bool
	Output      string
	Delimiter   string
}

// ParsePath splits "scheme://bucket/key" into bucket and key. Any scheme is
// accepted and discarded.
func ParsePath(path string) (bucket, key string, err error) {
	i := strings.Index(path, "://")
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q: missing scheme", ErrMalformedPath, path)
	}
	rest := path[i+3:]

	slash := strings.Index(rest, "/")
	if slash == -1 {
		return "", "", fmt.Errorf("%w: %q: missing key", ErrMalformedPath, path)
	}
	bucket, key = rest[:slash], rest[slash+1:]
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q: missing bucket", ErrMalformedPath, path)
	}
	if key == "" {
		return "", "", fmt.Errorf("%w: %q: missing key", ErrMalformedPath, path)
	}
	return bucket, key, nil
}

// GroupPaths parses paths and groups their keys per bucket as sets.
func GroupPaths(paths []string) (map[string]map[string]struct{}, error) {
	groups := make(map[string]map[string]struct{})
	for _, p := range paths {
		bucket, key, err := ParsePath(p)
		if err != nil {
			return nil, err
		}
		if groups[bucket] == nil {
			groups[bucket] = make(map[string]struct{})
		}
		groups[bucket][key] = struct{}{}
	}
	return groups, nil
}

// ScrapePaths returns records for exactly the requested object paths.
//
// Keys are grouped per bucket and each bucket is scraped once under the
// common path prefix of its keys, then narrowed to the requested keys.
// Buckets are scraped concurrently, bounded by Config.Workers. In
// historical mode every version and delete marker of a requested key is
// returned.
//
// Malformed paths and unresolvable output delimiters fail before any
// listing.
func (s *Scraper) ScrapePaths(ctx context.Context, paths []string, opts PathOptions) (Result, error) {
	delim, err := output.ResolveDelimiter(opts.Output, opts.Delimiter)
	if err != nil {
		return nil, err
	}

	groups, err := GroupPaths(paths)
	if err != nil {
		return nil, err
	}

	buckets := make([]string, 0, len(groups))
	for b := range groups {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	bucketOpts := BucketOptions{AllVersions: opts.AllVersions, DropFolders: opts.DropFolders}
	results := make([]Result, len(buckets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, bucket := range buckets {
		wanted := groups[bucket]
		g.Go(func() error {
			prefix := match.CommonPathPrefix(setKeys(wanted))
			s.logger.Debug("Scraping path group",
				zap.String("bucket", bucket),
				zap.String("prefix", prefix),
				zap.Int("paths", len(wanted)))

			res, err := s.scrapeBucket(gctx, bucket, []string{prefix}, bucketOpts)
			if err != nil {
				return err
			}
			res.filter(func(r Record) bool {
				_, ok := wanted[r.Key]
				return ok
			})
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := newResult(opts.AllVersions)
	for _, r := range results {
		merged.merge(r)
	}

	if opts.Output != "" {
		if _, err := WriteResult(opts.Output, delim, merged); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
