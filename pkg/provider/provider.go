// Package provider is the storage abstraction the scrapers list through.
//
// Backends cover listing, per-object metadata and, where the store keeps
// history, version listing (see VersionLister). Credentials come from each
// SDK's default chain unless a backend Config supplies them.
package provider

import (
	"context"
	"time"
)

// Provider lists and inspects objects in one bucket. Implementations are
// safe for concurrent use.
type Provider interface {
	// List returns one page of objects under opts.Prefix.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Head returns one object's metadata, or ErrNotFound.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	Close() error
}

// Opener binds providers to buckets.
//
// Aggregations that span several buckets share one SDK client through an
// Opener and ask it for a bucket-scoped Provider per bucket.
type Opener interface {
	Open(ctx context.Context, bucket string) (Provider, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, bucket string) (Provider, error)

// Open calls f(ctx, bucket).
func (f OpenerFunc) Open(ctx context.Context, bucket string) (Provider, error) {
	return f(ctx, bucket)
}

// ListOptions selects one page of a listing.
type ListOptions struct {
	Prefix string

	// ContinuationToken is the previous page's token; empty starts over.
	ContinuationToken string

	// MaxKeys is a page size hint. Zero uses the backend default.
	MaxKeys int
}

// ListResult is one page of a listing. An empty ContinuationToken with
// IsTruncated false ends the listing.
type ListResult struct {
	Objects           []ObjectSummary
	ContinuationToken string
	IsTruncated       bool
}

// ObjectSummary is the per-object metadata a listing reports.
type ObjectSummary struct {
	Key  string
	Size int64

	// ETag is returned as the service reports it, quotes included.
	ETag string

	LastModified time.Time

	// StorageClass is empty when the backend has no tiers.
	StorageClass string
}

// ObjectMeta is what Head reports for a single object.
type ObjectMeta struct {
	ObjectSummary

	ContentType string

	// Metadata holds user-defined metadata.
	Metadata map[string]string
}

// ProviderType names a storage backend.
type ProviderType string

const (
	ProviderS3    ProviderType = "s3"
	ProviderGCS   ProviderType = "gcs"
	ProviderMinIO ProviderType = "minio" // S3-compatible, through minio-go
	ProviderFile  ProviderType = "file"  // local directory tree
)

func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType maps a provider name or URI scheme to a ProviderType.
//
// "gs" is accepted as an alias for gcs, matching gsutil URIs.
func ParseProviderType(s string) (ProviderType, bool) {
	switch s {
	case "s3", "":
		return ProviderS3, true
	case "gcs", "gs":
		return ProviderGCS, true
	case "minio":
		return ProviderMinIO, true
	case "file":
		return ProviderFile, true
	}
	return "", false
}
