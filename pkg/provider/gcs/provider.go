// Package gcs implements the provider interface for Google Cloud Storage.
//
// Credentials come from Application Default Credentials unless a service
// account key file is configured. Only current objects are listed; version
// listing reports provider.ErrVersioningUnsupported.
package gcs

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/3leaps/bucketmeta/pkg/provider"
)

const defaultMaxKeys = 1000

// listAttrs is the attribute projection requested for listings.
var listAttrs = []string{"Name", "Size", "Etag", "Updated", "StorageClass"}

// Config configures a GCS-backed opener.
type Config struct {
	// CredentialsFile is an optional service account JSON key path.
	// Empty uses Application Default Credentials.
	CredentialsFile string

	// Endpoint overrides the storage API endpoint, for emulators.
	Endpoint string

	// MaxKeys is the page size for listings. Zero uses 1000.
	MaxKeys int
}

// Opener hands out bucket-scoped providers sharing one storage client.
type Opener struct {
	client  *storage.Client
	maxKeys int
}

var (
	_ provider.Opener        = (*Opener)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.VersionLister = (*Provider)(nil)
)

// NewOpener creates a storage client from cfg.
func NewOpener(ctx context.Context, cfg Config) (*Opener, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderGCS, Err: err}
	}

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &Opener{client: client, maxKeys: maxKeys}, nil
}

// Open returns a provider for bucket.
func (o *Opener) Open(_ context.Context, bucket string) (provider.Provider, error) {
	if bucket == "" {
		return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderGCS, Err: errors.New("bucket name is required")}
	}
	return &Provider{handle: o.client.Bucket(bucket), bucket: bucket, maxKeys: o.maxKeys}, nil
}

// Close releases the shared storage client.
func (o *Opener) Close() error {
	return o.client.Close()
}

// Provider lists one GCS bucket.
type Provider struct {
	handle  *storage.BucketHandle
	bucket  string
	maxKeys int
}

// List returns one page of objects under opts.Prefix.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	query := &storage.Query{Prefix: opts.Prefix}
	if err := query.SetAttrSelection(listAttrs); err != nil {
		return nil, p.wrapError("List", "", err)
	}

	pageSize := opts.MaxKeys
	if pageSize <= 0 {
		pageSize = p.maxKeys
	}

	var attrs []*storage.ObjectAttrs
	pager := iterator.NewPager(p.handle.Objects(ctx, query), pageSize, opts.ContinuationToken)
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, p.wrapError("List", "", err)
	}

	objects := make([]provider.ObjectSummary, 0, len(attrs))
	for _, a := range attrs {
		objects = append(objects, summaryOf(a))
	}

	return &provider.ListResult{
		Objects:           objects,
		ContinuationToken: next,
		IsTruncated:       next != "",
	}, nil
}

// ListVersions is not supported for GCS buckets.
func (p *Provider) ListVersions(context.Context, provider.ListVersionsOptions) (*provider.ListVersionsResult, error) {
	return nil, &provider.ProviderError{
		Op:       "ListVersions",
		Provider: provider.ProviderGCS,
		Bucket:   p.bucket,
		Err:      provider.ErrVersioningUnsupported,
	}
}

// Head returns metadata for a single object.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	a, err := p.handle.Object(key).Attrs(ctx)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	return &provider.ObjectMeta{
		ObjectSummary: summaryOf(a),
		ContentType:   a.ContentType,
		Metadata:      a.Metadata,
	}, nil
}

// Close is a no-op; the Opener owns the client.
func (p *Provider) Close() error {
	return nil
}

func summaryOf(a *storage.ObjectAttrs) provider.ObjectSummary {
	return provider.ObjectSummary{
		Key:          a.Name,
		Size:         a.Size,
		ETag:         a.Etag,
		LastModified: a.Updated,
		StorageClass: a.StorageClass,
	}
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderGCS,
		Bucket:   p.bucket,
		Key:      key,
		Err:      err,
	}
	if sentinel := sentinelFor(err); sentinel != nil {
		wrapped.Err = sentinel
	}
	return wrapped
}

// sentinelFor maps storage errors to provider sentinels, or nil.
func sentinelFor(err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return provider.ErrNotFound
	case errors.Is(err, storage.ErrBucketNotExist):
		return provider.ErrBucketNotFound
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return nil
	}
	switch apiErr.Code {
	case http.StatusNotFound:
		return provider.ErrNotFound
	case http.StatusUnauthorized:
		return provider.ErrInvalidCredentials
	case http.StatusForbidden:
		return provider.ErrAccessDenied
	case http.StatusTooManyRequests:
		return provider.ErrThrottled
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return provider.ErrProviderUnavailable
	}
	return nil
}
