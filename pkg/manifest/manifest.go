// Package manifest provides loading and validation of bucketmeta scrape jobs.
//
// A scrape job is a YAML or JSON file naming a provider connection, the
// bucket (with optional prefixes) or explicit object paths to scrape, and the
// output destination.
//
// Jobs are validated against an embedded JSON Schema before they are parsed.
// The schema rejects unknown properties and requires exactly one of
// scrape.bucket or scrape.paths.
//
// Example job (YAML):
//
//	version: "1.0"
//	connection:
//	  provider: s3
//	  region: us-east-1
//	scrape:
//	  bucket: my-data-bucket
//	  prefixes:
//	    - logs/2024/
//	  drop_folders: true
//	  match:
//	    excludes:
//	      - "**/_temporary/**"
//	output:
//	  destination: inventory.csv
package manifest

import (
	"strings"

	"github.com/3leaps/bucketmeta/pkg/match"
)

// Manifest represents a validated scrape job.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the job schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	Connection ConnectionConfig `json:"connection,omitempty" yaml:"connection,omitempty"`

	Scrape ScrapeConfig `json:"scrape" yaml:"scrape"`

	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// ConnectionConfig configures the storage provider connection.
//
// Credentials for minio are never read from the job file; they come from
// configuration or the environment.
type ConnectionConfig struct {
	// Provider is one of "s3", "minio", "gcs" or "file". Default: "s3".
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	// Profile is the AWS shared config profile. Empty uses the SDK chain.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`

	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint overrides the service endpoint (S3-compatible stores, minio
	// host:port, or a GCS emulator URL).
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// CredentialsFile is a GCS service account key file.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	// UseSSL enables TLS for minio endpoints.
	UseSSL bool `json:"use_ssl,omitempty" yaml:"use_ssl,omitempty"`

	// BaseDir is the directory holding bucket directories for the file provider.
	BaseDir string `json:"base_dir,omitempty" yaml:"base_dir,omitempty"`
}

// ScrapeConfig selects what to scrape and how.
type ScrapeConfig struct {
	// Bucket scrapes a whole bucket, or the listed Prefixes within it.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	Prefixes []string `json:"prefixes,omitempty" yaml:"prefixes,omitempty"`

	// Paths lists full object URIs (s3://bucket/key). Mutually exclusive with Bucket.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// DropFolders omits zero-size keys ending in "/".
	DropFolders bool `json:"drop_folders,omitempty" yaml:"drop_folders,omitempty"`

	// AllVersions scrapes every object version and delete marker.
	AllVersions bool `json:"all_versions,omitempty" yaml:"all_versions,omitempty"`

	// Workers bounds concurrent prefix and bucket tasks. Default: 5.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// RateLimit caps list requests per second (0 = unlimited).
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	Match MatchConfig `json:"match,omitempty" yaml:"match,omitempty"`

	// Filters applies size, date and key-regex constraints after Match.
	Filters match.FilterConfig `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// MatchConfig filters scraped keys by glob patterns.
type MatchConfig struct {
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	ExcludeHidden bool `json:"exclude_hidden,omitempty" yaml:"exclude_hidden,omitempty"`
}

// OutputConfig configures where records go.
type OutputConfig struct {
	// Destination is "stdout" for JSONL records, or a .csv/.tsv file path.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Delimiter overrides the extension-derived column delimiter.
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
}

// Default values for optional fields.
const (
	DefaultVersion     = "1.0"
	DefaultProvider    = "s3"
	DefaultWorkers     = 5
	DefaultDestination = "stdout"
)

// ApplyDefaults fills in default values for optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	if m.Connection.Provider == "" {
		m.Connection.Provider = DefaultProvider
	}
	if m.Scrape.Workers == 0 {
		m.Scrape.Workers = DefaultWorkers
	}
	// RateLimit 0 means unlimited
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
}

// IsPathJob reports whether the job scrapes explicit object paths.
func (m *Manifest) IsPathJob() bool {
	return len(m.Scrape.Paths) > 0
}

// ToStdout reports whether records stream as JSON lines to stdout.
func (o OutputConfig) ToStdout() bool {
	return o.Destination == "" || strings.EqualFold(o.Destination, DefaultDestination)
}
