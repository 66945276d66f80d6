// Package output renders scrape results.
//
// Two sinks are provided: delimited row files (CSV/TSV) for export, and
// newline-delimited JSON envelopes for streaming to stdout. Each JSONL line
// is a self-contained record that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope types, versioned as bucketmeta.<type>.v<version>.
const (
	// TypeObject identifies object, version and delete marker records.
	TypeObject = "bucketmeta.object.v1"

	// TypeError identifies error records.
	TypeError = "bucketmeta.error.v1"

	// TypeSummary identifies the final summary record of a run.
	TypeSummary = "bucketmeta.summary.v1"
)

// Record is the envelope for JSONL output.
type Record struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`

	// RunID correlates all lines emitted by one invocation.
	RunID string `json:"run_id"`

	// Provider identifies the storage backend (e.g., "s3", "gcs").
	Provider string `json:"provider"`

	Data json.RawMessage `json:"data"`
}

// ObjectRecord is the data payload for one scraped entry.
type ObjectRecord struct {
	// Category is empty for current-object scrapes, otherwise
	// "Versions" or "DeleteMarkers".
	Category string `json:"category,omitempty"`

	Bucket         string    `json:"bucket"`
	Key            string    `json:"key"`
	Size           *int64    `json:"size,omitempty"`
	ETag           string    `json:"etag,omitempty"`
	LastModified   time.Time `json:"last_modified"`
	StorageClass   string    `json:"storage_class,omitempty"`
	VersionID      string    `json:"version_id,omitempty"`
	IsLatest       *bool     `json:"is_latest,omitempty"`
	IsDeleteMarker bool      `json:"is_delete_marker,omitempty"`

	// ContentType and Metadata are only reported by single-object lookups.
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ErrorRecord is the data payload for a failed run.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	Message string `json:"message"`
	Bucket  string `json:"bucket,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeThrottled    = "THROTTLED"
	ErrCodeUnsupported  = "UNSUPPORTED"
	ErrCodeInternal     = "INTERNAL"
)

// SummaryRecord is emitted once at the end of a run.
type SummaryRecord struct {
	// Mode is "current" or "historical".
	Mode string `json:"mode"`

	Buckets  []string `json:"buckets"`
	Prefixes []string `json:"prefixes,omitempty"`

	// Records counts every emitted entry; Categories breaks it down for
	// historical runs.
	Records    int            `json:"records"`
	Categories map[string]int `json:"categories,omitempty"`

	BytesTotal int64 `json:"bytes_total"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`

	// Output is the file the rows were written to, if any.
	Output []string `json:"output,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")

	// ErrUnknownDelimiter is returned when no delimiter is given and the
	// output file extension is not csv or tsv.
	ErrUnknownDelimiter = errors.New("cannot infer delimiter from file extension")

	// ErrInvalidDelimiter is returned when a delimiter is not a single rune
	// usable as a field separator.
	ErrInvalidDelimiter = errors.New("delimiter must be a single character")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "create", "write", "flush")
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
