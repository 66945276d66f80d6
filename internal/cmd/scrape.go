package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketmeta/internal/config"
	"github.com/3leaps/bucketmeta/internal/observability"
	"github.com/3leaps/bucketmeta/pkg/manifest"
	"github.com/3leaps/bucketmeta/pkg/match"
	"github.com/3leaps/bucketmeta/pkg/output"
	"github.com/3leaps/bucketmeta/pkg/provider"
	"github.com/3leaps/bucketmeta/pkg/provider/file"
	"github.com/3leaps/bucketmeta/pkg/provider/gcs"
	"github.com/3leaps/bucketmeta/pkg/provider/minio"
	"github.com/3leaps/bucketmeta/pkg/provider/s3"
	"github.com/3leaps/bucketmeta/pkg/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape object metadata from buckets",
	Long: `Scrape object metadata from a bucket, a list of object paths, or a job file.

Records stream to stdout as JSON lines followed by a summary record. With
--output FILE.csv or FILE.tsv the rows are written to the file instead and
only the summary goes to stdout. Historical scrapes (--all-versions) write
Versions-FILE and DeleteMarkers-FILE next to the requested name.`,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

// connectionFlags select and configure the storage provider.
type connectionFlags struct {
	provider        string
	profile         string
	region          string
	endpoint        string
	credentialsFile string
	baseDir         string
	useSSL          bool
}

func (f *connectionFlags) register(c *cobra.Command) {
	fs := c.Flags()
	fs.StringVar(&f.provider, "provider", "", "Storage provider: s3, minio, gcs, file (default: from URI scheme, else s3)")
	fs.StringVar(&f.profile, "profile", "", "AWS shared config profile")
	fs.StringVar(&f.region, "region", "", "Provider region")
	fs.StringVar(&f.endpoint, "endpoint", "", "Custom endpoint (S3-compatible URL, minio host:port, GCS emulator)")
	fs.StringVar(&f.credentialsFile, "credentials-file", "", "GCS service account key file")
	fs.StringVar(&f.baseDir, "base-dir", "", "Directory holding bucket directories (file provider)")
	fs.BoolVar(&f.useSSL, "use-ssl", false, "Use TLS for minio endpoints")
}

func (f *connectionFlags) connection() manifest.ConnectionConfig {
	return manifest.ConnectionConfig{
		Provider:        f.provider,
		Profile:         f.profile,
		Region:          f.region,
		Endpoint:        f.endpoint,
		CredentialsFile: f.credentialsFile,
		BaseDir:         f.baseDir,
		UseSSL:          f.useSSL,
	}
}

// scrapeFlags are the options shared by the bucket and paths subcommands.
type scrapeFlags struct {
	connectionFlags

	workers   int
	rateLimit float64

	dropFolders bool
	allVersions bool

	output    string
	delimiter string

	includes      []string
	excludes      []string
	excludeHidden bool

	minSize        string
	maxSize        string
	modifiedAfter  string
	modifiedBefore string
	keyRegex       string

	dryRun bool
}

func (f *scrapeFlags) register(c *cobra.Command) {
	f.connectionFlags.register(c)

	fs := c.Flags()
	fs.IntVar(&f.workers, "workers", 0, "Concurrent listings (default: from config, 5)")
	fs.Float64Var(&f.rateLimit, "rate-limit", 0, "Max list requests per second (0 = unlimited)")

	fs.BoolVar(&f.dropFolders, "drop-folders", false, "Omit zero-size keys ending in /")
	fs.BoolVar(&f.allVersions, "all-versions", false, "Scrape every object version and delete marker")

	fs.StringVarP(&f.output, "output", "o", "", "Output file (.csv or .tsv); default streams JSONL to stdout")
	fs.StringVar(&f.delimiter, "delimiter", "", "Column delimiter, overriding the output extension")

	fs.StringSliceVar(&f.includes, "include", nil, "Glob patterns keys must match (repeatable)")
	fs.StringSliceVar(&f.excludes, "exclude", nil, "Glob patterns to skip (repeatable)")
	fs.BoolVar(&f.excludeHidden, "exclude-hidden", false, "Skip keys with a path segment starting with '.'")

	fs.StringVar(&f.minSize, "min-size", "", "Minimum object size (e.g. 1KB, 10MiB)")
	fs.StringVar(&f.maxSize, "max-size", "", "Maximum object size")
	fs.StringVar(&f.modifiedAfter, "modified-after", "", "Only objects modified at or after this date (2024-01-15 or RFC 3339)")
	fs.StringVar(&f.modifiedBefore, "modified-before", "", "Only objects modified before this date")
	fs.StringVar(&f.keyRegex, "key-regex", "", "Regular expression keys must match")

	fs.BoolVar(&f.dryRun, "dry-run", false, "Show the plan without scraping")
}

// manifest builds a job from the flags. The caller sets the scrape target.
func (f *scrapeFlags) manifest() *manifest.Manifest {
	m := &manifest.Manifest{
		Connection: f.connection(),
		Scrape: manifest.ScrapeConfig{
			DropFolders: f.dropFolders,
			AllVersions: f.allVersions,
			Workers:     f.workers,
			RateLimit:   f.rateLimit,
			Match: manifest.MatchConfig{
				Includes:      f.includes,
				Excludes:      f.excludes,
				ExcludeHidden: f.excludeHidden,
			},
			Filters: match.FilterConfig{
				MinSize:        f.minSize,
				MaxSize:        f.maxSize,
				ModifiedAfter:  f.modifiedAfter,
				ModifiedBefore: f.modifiedBefore,
				KeyRegex:       f.keyRegex,
			},
		},
		Output: manifest.OutputConfig{
			Destination: f.output,
			Delimiter:   f.delimiter,
		},
	}
	return m
}

// applyConfig fills job fields left unset from the runtime configuration,
// then applies the job defaults.
func applyConfig(m *manifest.Manifest, cfg *config.Config) {
	if cfg != nil {
		if m.Scrape.Workers == 0 {
			m.Scrape.Workers = cfg.Scrape.Workers
		}
		if m.Scrape.RateLimit == 0 {
			m.Scrape.RateLimit = cfg.Scrape.RateLimit
		}
	}
	m.ApplyDefaults()
}

// runScrapeJob executes m and writes JSONL records to stdout.
func runScrapeJob(ctx context.Context, m *manifest.Manifest, cfg *config.Config, stdout io.Writer) error {
	if cfg == nil {
		cfg = &config.Config{}
	}

	runID := uuid.New().String()
	log := observability.CLILogger.With(zap.String("run_id", runID))

	var matcher *match.Matcher
	matchCfg := match.Config{
		Includes:      m.Scrape.Match.Includes,
		Excludes:      m.Scrape.Match.Excludes,
		ExcludeHidden: m.Scrape.Match.ExcludeHidden,
	}
	if !matchCfg.IsEmpty() {
		var err error
		if matcher, err = match.New(matchCfg); err != nil {
			log.Error("Failed to create matcher", zap.Error(err))
			return exitError(foundry.ExitInvalidArgument, "Invalid match patterns", err)
		}
	}

	filter, err := match.NewFilter(m.Scrape.Filters)
	if err != nil {
		log.Error("Invalid filters", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid filters", err)
	}

	opener, closeOpener, err := newOpener(ctx, m.Connection, cfg)
	if err != nil {
		return openerExitError(log, err)
	}
	defer closeOpener()

	s := scrape.New(opener, scrape.Config{
		Workers:   m.Scrape.Workers,
		RateLimit: m.Scrape.RateLimit,
		MaxKeys:   cfg.Scrape.MaxKeys,
	}).WithMatcher(matcher).WithLogger(log)
	if filter != nil {
		s.WithFilter(filter)
	}

	dest := ""
	if !m.Output.ToStdout() {
		dest = m.Output.Destination
	}

	log.Info("Starting scrape",
		zap.String("provider", m.Connection.Provider),
		zap.String("bucket", m.Scrape.Bucket),
		zap.Int("paths", len(m.Scrape.Paths)),
		zap.Bool("all_versions", m.Scrape.AllVersions),
		zap.Int("workers", m.Scrape.Workers))

	start := time.Now()
	var res scrape.Result
	if m.IsPathJob() {
		res, err = s.ScrapePaths(ctx, m.Scrape.Paths, scrape.PathOptions{
			AllVersions: m.Scrape.AllVersions,
			DropFolders: m.Scrape.DropFolders,
			Output:      dest,
			Delimiter:   m.Output.Delimiter,
		})
	} else {
		res, err = s.ScrapeBucket(ctx, m.Scrape.Bucket, listPrefixes(m, matcher), scrape.BucketOptions{
			AllVersions: m.Scrape.AllVersions,
			DropFolders: m.Scrape.DropFolders,
			Output:      dest,
			Delimiter:   m.Output.Delimiter,
		})
	}
	elapsed := time.Since(start)

	w := output.NewJSONLWriter(stdout, runID, m.Connection.Provider)
	defer func() { _ = w.Close() }()

	if err != nil {
		// Context is cancelled on interrupt; the error record still goes out.
		if werr := w.WriteError(context.WithoutCancel(ctx), errorRecord(m.Scrape.Bucket, err)); werr != nil {
			log.Warn("Failed to write error record", zap.Error(werr))
		}
		return scrapeExitError(ctx, log, err)
	}

	if dest == "" {
		for _, cat := range res.Categories() {
			for _, r := range cat.Records {
				if err := w.WriteObject(ctx, r.ObjectRecord(cat.Name)); err != nil {
					return scrapeExitError(ctx, log, err)
				}
			}
		}
	}

	sum := summarize(m, res, elapsed)
	if dest != "" {
		sum.Output = scrape.OutputPaths(dest, res)
	}
	if err := w.WriteSummary(ctx, sum); err != nil {
		return scrapeExitError(ctx, log, err)
	}

	log.Info("Scrape completed",
		zap.Int("records", sum.Records),
		zap.Int64("bytes_total", sum.BytesTotal),
		zap.Duration("duration", elapsed),
		zap.Strings("output", sum.Output))
	return nil
}

// newOpener creates the provider opener for conn. Job connection values win
// over the runtime configuration. The returned func releases the client.
func newOpener(ctx context.Context, conn manifest.ConnectionConfig, cfg *config.Config) (provider.Opener, func(), error) {
	noop := func() {}

	pt, ok := provider.ParseProviderType(conn.Provider)
	if !ok {
		return nil, noop, fmt.Errorf("%w: %s", ErrUnsupportedProvider, conn.Provider)
	}

	switch pt {
	case provider.ProviderGCS:
		o, err := gcs.NewOpener(ctx, gcs.Config{
			CredentialsFile: firstNonEmpty(conn.CredentialsFile, cfg.GCS.CredentialsFile),
			Endpoint:        firstNonEmpty(conn.Endpoint, cfg.GCS.Endpoint),
			MaxKeys:         cfg.Scrape.MaxKeys,
		})
		if err != nil {
			return nil, noop, err
		}
		return o, func() { _ = o.Close() }, nil

	case provider.ProviderMinIO:
		o, err := minio.NewOpener(minio.Config{
			Endpoint:  firstNonEmpty(conn.Endpoint, cfg.MinIO.Endpoint),
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    conn.UseSSL || cfg.MinIO.UseSSL,
			Region:    firstNonEmpty(conn.Region, cfg.MinIO.Region),
		})
		if err != nil {
			return nil, noop, err
		}
		return o, noop, nil

	case provider.ProviderFile:
		return &file.Opener{
			Root:        firstNonEmpty(conn.BaseDir, cfg.File.BaseDir, "."),
			IncludeDirs: cfg.File.IncludeDirs,
		}, noop, nil

	default:
		endpoint := firstNonEmpty(conn.Endpoint, cfg.S3.Endpoint)
		o, err := s3.NewOpener(ctx, s3.Config{
			Region:   firstNonEmpty(conn.Region, cfg.S3.Region),
			Endpoint: endpoint,
			Profile:  firstNonEmpty(conn.Profile, cfg.S3.Profile),
			// S3-compatible services (moto, MinIO, etc.) need path-style URLs.
			ForcePathStyle: endpoint != "",
			MaxKeys:        cfg.Scrape.MaxKeys,
		})
		if err != nil {
			return nil, noop, err
		}
		return o, noop, nil
	}
}

func openerExitError(log *zap.Logger, err error) error {
	log.Error("Failed to create provider", zap.Error(err))
	var minioErr *minio.ConfigError
	if errors.As(err, &minioErr) || errors.Is(err, ErrUnsupportedProvider) {
		return exitError(foundry.ExitInvalidArgument, "Invalid provider configuration", err)
	}
	return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// scrapeExitError maps a scrape failure to an exit code.
func scrapeExitError(ctx context.Context, log *zap.Logger, err error) error {
	var writeErr *output.WriteError
	var patternErr *match.PatternError
	switch {
	case ctx.Err() != nil:
		log.Warn("Scrape cancelled", zap.Error(err))
		return exitError(foundry.ExitSignalInt, "Scrape cancelled", err)
	case errors.Is(err, output.ErrUnknownDelimiter),
		errors.Is(err, output.ErrInvalidDelimiter),
		errors.Is(err, scrape.ErrMalformedPath),
		errors.As(err, &patternErr):
		log.Error("Invalid scrape arguments", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid scrape arguments", err)
	case errors.As(err, &writeErr):
		log.Error("Failed to write output", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	default:
		log.Error("Scrape failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Scrape failed", err)
	}
}

// errorRecord classifies err for JSONL output. Provider errors override
// bucket with their own context.
func errorRecord(bucket string, err error) *output.ErrorRecord {
	rec := &output.ErrorRecord{Code: output.ErrCodeInternal, Message: err.Error(), Bucket: bucket}
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		if pe.Bucket != "" {
			rec.Bucket = pe.Bucket
		}
		rec.Prefix = pe.Key
	}

	switch {
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		rec.Code = output.ErrCodeAccessDenied
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		rec.Code = output.ErrCodeNotFound
	case provider.IsThrottled(err):
		rec.Code = output.ErrCodeThrottled
	case provider.IsVersioningUnsupported(err):
		rec.Code = output.ErrCodeUnsupported
	}
	return rec
}

func summarize(m *manifest.Manifest, res scrape.Result, elapsed time.Duration) *output.SummaryRecord {
	sum := &output.SummaryRecord{
		Mode:          "current",
		Records:       res.Len(),
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	}

	if m.IsPathJob() {
		groups, _ := scrape.GroupPaths(m.Scrape.Paths)
		for b := range groups {
			sum.Buckets = append(sum.Buckets, b)
		}
		sort.Strings(sum.Buckets)
	} else {
		sum.Buckets = []string{m.Scrape.Bucket}
		sum.Prefixes = m.Scrape.Prefixes
	}

	if _, ok := res.(*scrape.Historical); ok {
		sum.Mode = "historical"
		sum.Categories = make(map[string]int)
		for _, cat := range res.Categories() {
			sum.Categories[cat.Name] = len(cat.Records)
		}
	}

	for _, r := range res.Records() {
		if r.Size != nil {
			sum.BytesTotal += *r.Size
		}
	}
	return sum
}

// listPrefixes returns the prefixes to list for a bucket job. Without
// explicit prefixes, listing is narrowed to the static prefixes of the
// include patterns.
func listPrefixes(m *manifest.Manifest, matcher *match.Matcher) []string {
	if len(m.Scrape.Prefixes) > 0 || matcher == nil {
		return m.Scrape.Prefixes
	}
	derived := matcher.Prefixes()
	if len(derived) == 1 && derived[0] == "" {
		return nil
	}
	return derived
}

// showScrapePlan prints what m would scrape without contacting a provider.
func showScrapePlan(w io.Writer, m *manifest.Manifest) error {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("=== Scrape Plan (dry-run) ===\n\n")
	p("Provider:    %s\n", m.Connection.Provider)
	if m.Connection.Region != "" {
		p("Region:      %s\n", m.Connection.Region)
	}
	if m.Connection.Endpoint != "" {
		p("Endpoint:    %s\n", m.Connection.Endpoint)
	}
	if m.IsPathJob() {
		groups, err := scrape.GroupPaths(m.Scrape.Paths)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid object paths", err)
		}
		buckets := make([]string, 0, len(groups))
		for b := range groups {
			buckets = append(buckets, b)
		}
		sort.Strings(buckets)
		p("Paths:       %d\n", len(m.Scrape.Paths))
		for _, b := range buckets {
			keys := make([]string, 0, len(groups[b]))
			for k := range groups[b] {
				keys = append(keys, k)
			}
			p("  %s: %d keys under %q\n", b, len(keys), match.CommonPathPrefix(keys))
		}
	}

	var matcher *match.Matcher
	matchCfg := match.Config{
		Includes:      m.Scrape.Match.Includes,
		Excludes:      m.Scrape.Match.Excludes,
		ExcludeHidden: m.Scrape.Match.ExcludeHidden,
	}
	if !matchCfg.IsEmpty() {
		var err error
		if matcher, err = match.New(matchCfg); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid match patterns", err)
		}
	}

	if !m.IsPathJob() {
		p("Bucket:      %s\n", m.Scrape.Bucket)
		prefixes := listPrefixes(m, matcher)
		switch {
		case len(prefixes) == 0:
			p("Prefixes:    (whole bucket)\n")
		case len(m.Scrape.Prefixes) == 0:
			p("Prefixes (from includes):\n")
		default:
			p("Prefixes:\n")
		}
		for _, pre := range scrape.NormalizePrefixes(prefixes) {
			if pre != "" {
				p("  - %s\n", pre)
			}
		}
	}
	if matcher != nil {
		p("Include:     %v\n", matcher.IncludePatterns())
		p("Exclude:     %v\n", matcher.ExcludePatterns())
		if m.Scrape.Match.ExcludeHidden {
			p("Hidden:      excluded\n")
		}
	}
	if f, err := match.NewFilter(m.Scrape.Filters); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filters", err)
	} else if f != nil {
		p("Filters:     %s\n", f)
	}
	p("Versions:    %v\n", m.Scrape.AllVersions)
	p("Drop dirs:   %v\n", m.Scrape.DropFolders)
	p("Workers:     %d\n", m.Scrape.Workers)
	if m.Scrape.RateLimit > 0 {
		p("Rate Limit:  %.1f req/s\n", m.Scrape.RateLimit)
	}
	p("Output:      %s\n", m.Output.Destination)
	if !m.Output.ToStdout() {
		delim, err := output.ResolveDelimiter(m.Output.Destination, m.Output.Delimiter)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid output", err)
		}
		p("Delimiter:   %q\n", delim)
	}
	p("\nJob validated successfully. Remove --dry-run to execute.\n")
	return nil
}
