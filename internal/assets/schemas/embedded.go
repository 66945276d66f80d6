// Package schemasassets provides embedded JSON schemas so validation works
// in installed binaries regardless of the working directory.
package schemasassets

import _ "embed"

// ScrapeJobSchema is the embedded scrape-job JSON schema.
//
//go:embed scrape-job.schema.json
var ScrapeJobSchema []byte
