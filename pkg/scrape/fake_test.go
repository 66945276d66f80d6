package scrape

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/bucketmeta/pkg/provider"
)

// fakeBucket is an in-memory bucket with paginated listings.
type fakeBucket struct {
	objects       []provider.ObjectSummary
	versions      []provider.ObjectVersion
	deleteMarkers []provider.DeleteMarker

	// pageSize caps entries per page; zero means 2.
	pageSize int

	// failPrefix makes listings under this prefix fail with failErr.
	failPrefix string
	failErr    error

	mu       sync.Mutex
	prefixes []string
	pages    int
}

func (b *fakeBucket) size() int {
	if b.pageSize > 0 {
		return b.pageSize
	}
	return 2
}

func (b *fakeBucket) record(prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages++
	b.prefixes = append(b.prefixes, prefix)
	if b.failErr != nil && strings.HasPrefix(prefix, b.failPrefix) {
		return b.failErr
	}
	return nil
}

func (b *fakeBucket) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.record(opts.Prefix); err != nil {
		return nil, err
	}

	var matched []provider.ObjectSummary
	for _, o := range b.objects {
		if strings.HasPrefix(o.Key, opts.Prefix) && o.Key > opts.ContinuationToken {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })

	if len(matched) <= b.size() {
		return &provider.ListResult{Objects: matched}, nil
	}
	page := matched[:b.size()]
	return &provider.ListResult{
		Objects:           page,
		ContinuationToken: page[len(page)-1].Key,
		IsTruncated:       true,
	}, nil
}

type versionEntry struct {
	key string
	v   *provider.ObjectVersion
	dm  *provider.DeleteMarker
}

func (b *fakeBucket) ListVersions(ctx context.Context, opts provider.ListVersionsOptions) (*provider.ListVersionsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.record(opts.Prefix); err != nil {
		return nil, err
	}

	var entries []versionEntry
	for i := range b.versions {
		if strings.HasPrefix(b.versions[i].Key, opts.Prefix) {
			entries = append(entries, versionEntry{key: b.versions[i].Key + "\x00" + b.versions[i].VersionID, v: &b.versions[i]})
		}
	}
	for i := range b.deleteMarkers {
		if strings.HasPrefix(b.deleteMarkers[i].Key, opts.Prefix) {
			entries = append(entries, versionEntry{key: b.deleteMarkers[i].Key + "\x00" + b.deleteMarkers[i].VersionID, dm: &b.deleteMarkers[i]})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	marker := ""
	if opts.KeyMarker != "" {
		marker = opts.KeyMarker + "\x00" + opts.VersionIDMarker
	}
	start := sort.Search(len(entries), func(i int) bool { return entries[i].key > marker })
	entries = entries[start:]

	res := &provider.ListVersionsResult{}
	if len(entries) > b.size() {
		last := entries[b.size()-1].key
		parts := strings.SplitN(last, "\x00", 2)
		res.IsTruncated = true
		res.NextKeyMarker, res.NextVersionIDMarker = parts[0], parts[1]
		entries = entries[:b.size()]
	}
	for _, e := range entries {
		if e.v != nil {
			res.Versions = append(res.Versions, *e.v)
		} else {
			res.DeleteMarkers = append(res.DeleteMarkers, *e.dm)
		}
	}
	return res, nil
}

func (b *fakeBucket) Head(context.Context, string) (*provider.ObjectMeta, error) {
	return nil, provider.ErrNotFound
}

func (b *fakeBucket) Close() error { return nil }

func (b *fakeBucket) pageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages
}

// currentOnly hides ListVersions.
type currentOnly struct{ b *fakeBucket }

func (c currentOnly) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	return c.b.List(ctx, opts)
}

func (c currentOnly) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	return c.b.Head(ctx, key)
}

func (c currentOnly) Close() error { return nil }

// fakeOpener serves fake buckets by name.
func fakeOpener(buckets map[string]*fakeBucket) provider.Opener {
	return provider.OpenerFunc(func(_ context.Context, name string) (provider.Provider, error) {
		b, ok := buckets[name]
		if !ok {
			return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderS3, Bucket: name, Err: provider.ErrBucketNotFound}
		}
		return b, nil
	})
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func obj(key string, size int64, etag string) provider.ObjectSummary {
	return provider.ObjectSummary{Key: key, Size: size, ETag: etag, LastModified: t0, StorageClass: "STANDARD"}
}

func keys(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Key)
	}
	sort.Strings(out)
	return out
}
