package provider

import (
	"context"
	"time"
)

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small.

// VersionLister can list every stored version of every object, including
// delete markers, on buckets with versioning enabled.
type VersionLister interface {
	ListVersions(ctx context.Context, opts ListVersionsOptions) (*ListVersionsResult, error)
}

// ListVersionsOptions configures a ListVersions operation.
type ListVersionsOptions struct {
	// Prefix filters results to keys starting with this value.
	Prefix string

	// KeyMarker and VersionIDMarker resume listing from a previous
	// ListVersionsResult. Both empty starts from the beginning.
	KeyMarker       string
	VersionIDMarker string

	// MaxKeys limits the number of entries returned per page.
	MaxKeys int
}

// ListVersionsResult contains a page of versions and delete markers.
//
// The two arrays are independent; a page may carry entries in either,
// both, or neither.
type ListVersionsResult struct {
	Versions      []ObjectVersion
	DeleteMarkers []DeleteMarker

	// NextKeyMarker and NextVersionIDMarker continue the listing.
	NextKeyMarker       string
	NextVersionIDMarker string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectVersion is one stored version of an object.
type ObjectVersion struct {
	ObjectSummary

	VersionID string
	IsLatest  bool
}

// DeleteMarker records that the current version of a key was deleted.
// Delete markers carry no size or entity tag.
type DeleteMarker struct {
	Key          string
	VersionID    string
	IsLatest     bool
	LastModified time.Time
}
