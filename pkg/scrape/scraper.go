// Package scrape enumerates bucket contents into metadata records.
//
// ScrapePrefix pages one provider listing under one prefix. A Scraper fans
// prefixes (ScrapeBucket) or explicit object paths (ScrapePaths) out over a
// bounded worker pool, merges the per-task results, normalizes the records
// and optionally writes them to a CSV/TSV file.
//
// Scrapes are all-or-nothing: the first listing error cancels the remaining
// tasks and no partial result is returned.
package scrape

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/bucketmeta/pkg/match"
	"github.com/3leaps/bucketmeta/pkg/provider"
)

// PrefixOptions configures a single-prefix scrape.
type PrefixOptions struct {
	// AllVersions lists object versions and delete markers instead of
	// current objects. The provider must implement provider.VersionLister.
	AllVersions bool

	// DropFolders discards zero-size keys ending in "/" (console folder
	// placeholders).
	DropFolders bool

	// Matcher, if set, keeps only keys it matches.
	Matcher *match.Matcher

	// Filter, if set, applies metadata constraints after Matcher.
	Filter match.Filter

	// Limiter, if set, is waited on before every page request.
	Limiter *rate.Limiter

	// MaxKeys is the page size hint. Zero uses the provider default.
	MaxKeys int

	Logger *zap.Logger
}

// ScrapePrefix pages through every entry under prefix and returns the ones
// that pass the folder filter, matcher and metadata filter.
//
// Records are returned as the provider reports them; Bucket is not set and
// ETags are not normalized. Provider errors are returned unchanged.
func ScrapePrefix(ctx context.Context, lister provider.Provider, prefix string, opts PrefixOptions) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		res   Result
		pages int
		err   error
	)
	if opts.AllVersions {
		res, pages, err = scrapeVersions(ctx, lister, prefix, opts)
	} else {
		res, pages, err = scrapeObjects(ctx, lister, prefix, opts)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Prefix scraped",
		zap.String("prefix", prefix),
		zap.Int("pages", pages),
		zap.Int("records", res.Len()))
	return res, nil
}

func scrapeObjects(ctx context.Context, lister provider.Provider, prefix string, opts PrefixOptions) (Result, int, error) {
	res := &Flat{}
	token := ""
	pages := 0

	for {
		if err := waitPage(ctx, opts.Limiter); err != nil {
			return nil, pages, err
		}

		page, err := lister.List(ctx, provider.ListOptions{
			Prefix:            prefix,
			ContinuationToken: token,
			MaxKeys:           opts.MaxKeys,
		})
		if err != nil {
			return nil, pages, err
		}
		pages++

		for _, obj := range page.Objects {
			size := obj.Size
			if keep(opts, match.Entry{Key: obj.Key, Size: &size, LastModified: obj.LastModified}) {
				res.Objects = append(res.Objects, fromSummary(obj))
			}
		}

		if !page.IsTruncated || page.ContinuationToken == "" {
			return res, pages, nil
		}
		token = page.ContinuationToken
	}
}

func scrapeVersions(ctx context.Context, lister provider.Provider, prefix string, opts PrefixOptions) (Result, int, error) {
	vl, ok := lister.(provider.VersionLister)
	if !ok {
		return nil, 0, fmt.Errorf("list versions under %q: %w", prefix, provider.ErrVersioningUnsupported)
	}

	res := &Historical{}
	var keyMarker, versionMarker string
	pages := 0

	for {
		if err := waitPage(ctx, opts.Limiter); err != nil {
			return nil, pages, err
		}

		page, err := vl.ListVersions(ctx, provider.ListVersionsOptions{
			Prefix:          prefix,
			KeyMarker:       keyMarker,
			VersionIDMarker: versionMarker,
			MaxKeys:         opts.MaxKeys,
		})
		if err != nil {
			return nil, pages, err
		}
		pages++

		for _, v := range page.Versions {
			size := v.Size
			if keep(opts, match.Entry{Key: v.Key, Size: &size, LastModified: v.LastModified}) {
				res.Versions = append(res.Versions, fromVersion(v))
			}
		}
		for _, dm := range page.DeleteMarkers {
			if keep(opts, match.Entry{Key: dm.Key, LastModified: dm.LastModified}) {
				res.DeleteMarkers = append(res.DeleteMarkers, fromDeleteMarker(dm))
			}
		}

		if !page.IsTruncated || (page.NextKeyMarker == "" && page.NextVersionIDMarker == "") {
			return res, pages, nil
		}
		keyMarker, versionMarker = page.NextKeyMarker, page.NextVersionIDMarker
	}
}

// waitPage checks for cancellation and honors the optional page limiter.
func waitPage(ctx context.Context, limiter *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func keep(opts PrefixOptions, e match.Entry) bool {
	if !KeepFolderEntry(opts.DropFolders, e.Key, e.Size) {
		return false
	}
	if opts.Matcher != nil && !opts.Matcher.Match(e.Key) {
		return false
	}
	return opts.Filter == nil || opts.Filter.Match(e)
}

// KeepFolderEntry reports whether an entry survives folder-placeholder
// filtering. With drop disabled everything is kept; otherwise an entry is
// dropped only when its key ends in "/" and its size is zero. A nil size
// counts as non-zero, so delete markers are always kept.
func KeepFolderEntry(drop bool, key string, size *int64) bool {
	if !drop || !strings.HasSuffix(key, "/") {
		return true
	}
	return size == nil || *size > 0
}
