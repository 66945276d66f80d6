// Package file implements provider.Provider over a local directory tree.
//
// Each top-level directory under the opener root acts as a bucket and the
// slash-separated paths below it act as keys. It backs offline runs and
// tests of the scrape pipeline.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/bucketmeta/pkg/provider"
)

// Provider implements provider.Provider for one directory.
//
// Prefixes are plain string prefixes over keys, matching object store
// semantics: "lo" matches "logs/a.txt" and "lock".
type Provider struct {
	baseDir     string
	includeDirs bool
}

var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Opener   = (*Opener)(nil)
)

type Config struct {
	BaseDir string

	// IncludeDirs lists every directory as a zero-size "dir/" key, the way
	// console-created folder placeholders appear in object stores.
	IncludeDirs bool
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{baseDir: filepath.Clean(cfg.BaseDir), includeDirs: cfg.IncludeDirs}, nil
}

// Opener maps bucket names to subdirectories of Root.
type Opener struct {
	Root        string
	IncludeDirs bool
}

// Open returns a provider rooted at Root/bucket.
func (o *Opener) Open(_ context.Context, bucket string) (provider.Provider, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == ".." || bucket == "." {
		return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Bucket: bucket, Err: fmt.Errorf("invalid bucket name")}
	}
	dir := filepath.Join(o.Root, bucket)
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, &provider.ProviderError{Op: "Open", Provider: provider.ProviderFile, Bucket: bucket, Err: provider.ErrBucketNotFound}
	}
	return New(Config{BaseDir: dir, IncludeDirs: o.IncludeDirs})
}

func (p *Provider) Close() error { return nil }

func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	entries, err := p.collect(ctx, prefix)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned key.
		start = sort.Search(len(entries), func(i int) bool {
			return entries[i].Key > opts.ContinuationToken
		})
	}

	end := start + maxKeys
	if end > len(entries) {
		end = len(entries)
	}

	res := &provider.ListResult{Objects: entries[start:end]}
	if end < len(entries) {
		res.IsTruncated = true
		res.ContinuationToken = entries[end-1].Key
	}
	return res, nil
}

func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	_ = ctx
	full, err := p.fullPath(key)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	st, err := os.Stat(full)
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	if st.IsDir() {
		return nil, &provider.ProviderError{Op: "Head", Provider: provider.ProviderFile, Key: key, Err: provider.ErrNotFound}
	}

	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{Key: strings.TrimPrefix(key, "/"), Size: st.Size(), LastModified: st.ModTime()},
	}, nil
}

func (p *Provider) fullPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	// Prevent path traversal.
	clean := filepath.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean)), nil
}

// collect walks the smallest directory that can contain prefix and returns
// matching entries sorted by key.
func (p *Provider) collect(ctx context.Context, prefix string) ([]provider.ObjectSummary, error) {
	walkRoot := p.baseDir
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir, err := p.fullPath(prefix[:i])
		if err != nil {
			return nil, err
		}
		walkRoot = dir
	}
	if _, err := os.Stat(walkRoot); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []provider.ObjectSummary
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == p.baseDir {
			return nil
		}
		rel, err := filepath.Rel(p.baseDir, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			if !p.includeDirs {
				return nil
			}
			key += "/"
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := info.Size()
		if d.IsDir() {
			size = 0
		}
		entries = append(entries, provider.ObjectSummary{Key: key, Size: size, LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = provider.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
