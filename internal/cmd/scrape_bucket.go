package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketmeta/pkg/manifest"
	"github.com/3leaps/bucketmeta/pkg/provider"
)

var scrapeBucketCmd = &cobra.Command{
	Use:   "bucket <bucket|uri> [prefix...]",
	Short: "Scrape a whole bucket or prefixes within it",
	Long: `Scrape every object under the given prefixes of one bucket. With no
prefix the whole bucket is scraped. A URI key is used as a prefix, or as an
include pattern when it contains glob characters.

Examples:
  bucketmeta scrape bucket my-bucket
  bucketmeta scrape bucket s3://my-bucket/logs/2024/ --drop-folders
  bucketmeta scrape bucket my-bucket logs/ data/ -o inventory.csv
  bucketmeta scrape bucket gs://my-bucket/data/**/*.parquet
  bucketmeta scrape bucket s3://my-bucket --all-versions -o history.tsv
  bucketmeta scrape bucket file://fixtures --base-dir ./testdata`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScrapeBucket,
}

var bucketFlags scrapeFlags

func init() {
	scrapeCmd.AddCommand(scrapeBucketCmd)
	bucketFlags.register(scrapeBucketCmd)
}

func runScrapeBucket(cmd *cobra.Command, args []string) error {
	m, err := bucketManifest(&bucketFlags, args)
	if err != nil {
		return err
	}
	if bucketFlags.dryRun {
		return showScrapePlan(cmd.OutOrStdout(), m)
	}
	return runScrapeJob(cmd.Context(), m, appConfig, cmd.OutOrStdout())
}

// bucketManifest turns bucket command arguments into a validated job.
func bucketManifest(f *scrapeFlags, args []string) (*manifest.Manifest, error) {
	u, err := parseBucketArg(args[0])
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid bucket", err)
	}

	pt, err := resolveProvider(f.provider, u.Provider)
	if err != nil {
		return nil, err
	}

	m := f.manifest()
	m.Scrape.Bucket = u.Bucket
	m.Connection.Provider = pt.String()
	if u.Prefix != "" {
		m.Scrape.Prefixes = append(m.Scrape.Prefixes, u.Prefix)
	}
	m.Scrape.Prefixes = append(m.Scrape.Prefixes, args[1:]...)
	if u.IsPattern() {
		m.Scrape.Match.Includes = append(m.Scrape.Match.Includes, u.Pattern)
	}

	applyConfig(m, appConfig)
	if err := manifest.Validate(m); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid scrape options", err)
	}
	return m, nil
}

// resolveProvider reconciles the --provider flag with a URI scheme. An
// empty flag takes the scheme's provider; otherwise the two must agree.
func resolveProvider(flag string, fromURI provider.ProviderType) (provider.ProviderType, error) {
	if flag == "" {
		return fromURI, nil
	}
	pt, ok := provider.ParseProviderType(flag)
	if !ok {
		return "", exitError(foundry.ExitInvalidArgument, "Invalid --provider",
			fmt.Errorf("%w: %s", ErrUnsupportedProvider, flag))
	}
	// minio serves S3-compatible stores, so it accepts s3:// URIs.
	if fromURI != "" && pt != fromURI && (pt != provider.ProviderMinIO || fromURI != provider.ProviderS3) {
		return "", exitError(foundry.ExitInvalidArgument, "Conflicting provider",
			fmt.Errorf("--provider %s does not match URI scheme %s", flag, fromURI))
	}
	return pt, nil
}
