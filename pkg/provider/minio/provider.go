// Package minio implements the provider interface for S3-compatible stores
// through the MinIO client.
//
// The MinIO client pages listings internally and streams entries over a
// channel, so a single List or ListVersions call drains the whole listing
// and reports IsTruncated=false.
package minio

import (
	"context"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/3leaps/bucketmeta/pkg/provider"
)

// Config configures a MinIO-backed provider.
type Config struct {
	// Endpoint is host[:port] of the S3-compatible service, without scheme.
	Endpoint string

	// AccessKey and SecretKey are static credentials.
	AccessKey string
	SecretKey string

	// UseSSL selects https.
	UseSSL bool

	// Region is passed through to the client; most stores ignore it.
	Region string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return &ConfigError{Field: "Endpoint", Message: "endpoint is required"}
	}
	if strings.Contains(c.Endpoint, "://") {
		return &ConfigError{Field: "Endpoint", Message: "endpoint must be host[:port] without scheme"}
	}
	if (c.AccessKey != "") != (c.SecretKey != "") {
		return &ConfigError{
			Field:   "AccessKey/SecretKey",
			Message: "both access key and secret key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "minio config: " + e.Field + ": " + e.Message
}

// Opener hands out bucket-scoped providers sharing one MinIO client.
type Opener struct {
	client *miniogo.Client
}

var (
	_ provider.Opener        = (*Opener)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.VersionLister = (*Provider)(nil)
)

// NewOpener creates the MinIO client described by cfg.
func NewOpener(cfg Config) (*Opener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderMinIO, Err: err}
	}
	return &Opener{client: client}, nil
}

// Open returns a provider for bucket.
func (o *Opener) Open(_ context.Context, bucket string) (provider.Provider, error) {
	if bucket == "" {
		return nil, &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	return &Provider{client: o.client, bucket: bucket}, nil
}

// Provider lists one bucket through the MinIO client.
type Provider struct {
	client *miniogo.Client
	bucket string
}

// List drains the listing under opts.Prefix.
//
// A non-empty ContinuationToken is treated as a start-after key.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listOpts := miniogo.ListObjectsOptions{
		Prefix:     opts.Prefix,
		Recursive:  true,
		StartAfter: opts.ContinuationToken,
	}
	if opts.MaxKeys > 0 {
		listOpts.MaxKeys = opts.MaxKeys
	}

	var objects []provider.ObjectSummary
	for obj := range p.client.ListObjects(ctx, p.bucket, listOpts) {
		if obj.Err != nil {
			return nil, p.wrapError("List", "", obj.Err)
		}
		objects = append(objects, summaryOf(obj))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &provider.ListResult{Objects: objects}, nil
}

// ListVersions drains the versioned listing under opts.Prefix.
func (p *Provider) ListVersions(ctx context.Context, opts provider.ListVersionsOptions) (*provider.ListVersionsResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listOpts := miniogo.ListObjectsOptions{
		Prefix:       opts.Prefix,
		Recursive:    true,
		WithVersions: true,
	}

	result := &provider.ListVersionsResult{}
	for obj := range p.client.ListObjects(ctx, p.bucket, listOpts) {
		if obj.Err != nil {
			return nil, p.wrapError("ListVersions", "", obj.Err)
		}
		if obj.IsDeleteMarker {
			result.DeleteMarkers = append(result.DeleteMarkers, provider.DeleteMarker{
				Key:          obj.Key,
				VersionID:    obj.VersionID,
				IsLatest:     obj.IsLatest,
				LastModified: obj.LastModified,
			})
			continue
		}
		result.Versions = append(result.Versions, provider.ObjectVersion{
			ObjectSummary: summaryOf(obj),
			VersionID:     obj.VersionID,
			IsLatest:      obj.IsLatest,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Head returns metadata for a single object.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	info, err := p.client.StatObject(ctx, p.bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	return &provider.ObjectMeta{
		ObjectSummary: summaryOf(info),
		ContentType:   info.ContentType,
		Metadata:      info.UserMetadata,
	}, nil
}

// Close is a no-op; the MinIO client holds no persistent connections.
func (p *Provider) Close() error {
	return nil
}

func summaryOf(obj miniogo.ObjectInfo) provider.ObjectSummary {
	return provider.ObjectSummary{
		Key:          obj.Key,
		Size:         obj.Size,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
		StorageClass: obj.StorageClass,
	}
}

// wrapError converts MinIO error responses to provider errors.
func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderMinIO,
		Bucket:   p.bucket,
		Key:      key,
		Err:      err,
	}

	if sentinel := sentinelFor(miniogo.ToErrorResponse(err)); sentinel != nil {
		wrapped.Err = sentinel
	}
	return wrapped
}

// sentinelFor maps a MinIO error response to a provider sentinel, or nil.
func sentinelFor(resp miniogo.ErrorResponse) error {
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return provider.ErrNotFound
	case "NoSuchBucket":
		return provider.ErrBucketNotFound
	case "AccessDenied", "Forbidden":
		return provider.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return provider.ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return provider.ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return provider.ErrProviderUnavailable
	}

	switch resp.StatusCode {
	case 404:
		return provider.ErrNotFound
	case 403:
		return provider.ErrAccessDenied
	case 429:
		return provider.ErrThrottled
	case 503:
		return provider.ErrProviderUnavailable
	}
	return nil
}
