package scrape

import (
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/bucketmeta/pkg/output"
	"github.com/3leaps/bucketmeta/pkg/provider"
)

// Column names used when rendering records as rows.
const (
	ColBucket       = "Bucket"
	ColKey          = "Key"
	ColSize         = "Size"
	ColLastModified = "LastModified"
	ColETag         = "ETag"
	ColStorageClass = "StorageClass"
	ColVersionID    = "VersionId"
	ColIsLatest     = "IsLatest"
)

// Record is one scraped entry: a current object, an object version, or a
// delete marker.
type Record struct {
	Bucket string
	Key    string

	// Size is nil when the provider reports none, as for delete markers.
	Size *int64

	LastModified time.Time
	ETag         string
	StorageClass string

	// VersionID and IsLatest are only set in historical scrapes.
	VersionID string
	IsLatest  *bool

	IsDeleteMarker bool
}

// Fields renders the record's present fields as a row keyed by column name.
func (r Record) Fields() map[string]string {
	f := map[string]string{
		ColBucket: r.Bucket,
		ColKey:    r.Key,
	}
	if r.Size != nil {
		f[ColSize] = strconv.FormatInt(*r.Size, 10)
	}
	if !r.LastModified.IsZero() {
		f[ColLastModified] = r.LastModified.UTC().Format(time.RFC3339)
	}
	if r.ETag != "" {
		f[ColETag] = r.ETag
	}
	if r.StorageClass != "" {
		f[ColStorageClass] = r.StorageClass
	}
	if r.VersionID != "" {
		f[ColVersionID] = r.VersionID
	}
	if r.IsLatest != nil {
		f[ColIsLatest] = strconv.FormatBool(*r.IsLatest)
	}
	return f
}

// ObjectRecord converts r to its JSONL payload under category.
func (r Record) ObjectRecord(category string) *output.ObjectRecord {
	return &output.ObjectRecord{
		Category:       category,
		Bucket:         r.Bucket,
		Key:            r.Key,
		Size:           r.Size,
		ETag:           r.ETag,
		LastModified:   r.LastModified,
		StorageClass:   r.StorageClass,
		VersionID:      r.VersionID,
		IsLatest:       r.IsLatest,
		IsDeleteMarker: r.IsDeleteMarker,
	}
}

// Rows renders records with Fields.
func Rows(records []Record) []map[string]string {
	rows := make([]map[string]string, len(records))
	for i, r := range records {
		rows[i] = r.Fields()
	}
	return rows
}

// NormalizeETag strips one leading and one trailing double quote.
func NormalizeETag(etag string) string {
	etag = strings.TrimPrefix(etag, `"`)
	return strings.TrimSuffix(etag, `"`)
}

func fromSummary(o provider.ObjectSummary) Record {
	size := o.Size
	return Record{
		Key:          o.Key,
		Size:         &size,
		LastModified: o.LastModified,
		ETag:         o.ETag,
		StorageClass: o.StorageClass,
	}
}

func fromVersion(v provider.ObjectVersion) Record {
	r := fromSummary(v.ObjectSummary)
	latest := v.IsLatest
	r.VersionID = v.VersionID
	r.IsLatest = &latest
	return r
}

func fromDeleteMarker(d provider.DeleteMarker) Record {
	latest := d.IsLatest
	return Record{
		Key:            d.Key,
		LastModified:   d.LastModified,
		VersionID:      d.VersionID,
		IsLatest:       &latest,
		IsDeleteMarker: true,
	}
}
