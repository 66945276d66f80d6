package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3leaps/bucketmeta/pkg/match"
	"github.com/3leaps/bucketmeta/pkg/provider"
)

var (
	ErrInvalidURI          = errors.New("invalid URI")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrMissingBucket       = errors.New("missing bucket name")
)

// BucketURI is a parsed bucket target such as s3://bucket/logs/ or
// gs://bucket/data/**/*.parquet.
type BucketURI struct {
	Provider provider.ProviderType
	Bucket   string

	// Prefix is the literal listing prefix. For glob keys it is the part
	// before the first unescaped metacharacter.
	Prefix string

	// Pattern is the full key glob, empty for literal keys.
	Pattern string
}

// String returns the URI in canonical form.
func (u *BucketURI) String() string {
	key := u.Prefix
	if u.Pattern != "" {
		key = u.Pattern
	}
	return fmt.Sprintf("%s://%s/%s", u.Provider, u.Bucket, key)
}

// IsPattern reports whether the key contained glob characters.
func (u *BucketURI) IsPattern() bool {
	return u.Pattern != ""
}

// ParseBucketURI parses scheme://bucket[/key]. Schemes are the provider
// names plus "gs" for gcs. Escaped glob characters (\*) are literal.
func ParseBucketURI(uri string) (*BucketURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	// url.Parse would treat '?' globs as a query.
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return nil, fmt.Errorf("%w: missing scheme (expected s3://, gs://, minio:// or file://)", ErrInvalidURI)
	}

	scheme := strings.ToLower(uri[:schemeEnd])
	pt, ok := provider.ParseProviderType(scheme)
	if !ok || scheme == "" {
		return nil, fmt.Errorf("%w: %s (supported: s3, gs, gcs, minio, file)", ErrUnsupportedProvider, scheme)
	}

	bucket, key, _ := strings.Cut(uri[schemeEnd+3:], "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
	}
	if strings.ContainsAny(bucket, " \t\\?#") {
		return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
	}

	u := &BucketURI{Provider: pt, Bucket: bucket, Prefix: match.DerivePrefix(key)}
	if match.IsGlobPattern(key) {
		u.Pattern = key
	}
	return u, nil
}

// parseBucketArg accepts a bare bucket name or a bucket URI.
func parseBucketArg(arg string) (*BucketURI, error) {
	if !strings.Contains(arg, "://") {
		if arg == "" || strings.Contains(arg, "/") {
			return nil, fmt.Errorf("%w: %q is neither a bucket name nor a URI", ErrInvalidURI, arg)
		}
		return &BucketURI{Bucket: arg}, nil
	}
	return ParseBucketURI(arg)
}
