package cmd

import (
	"errors"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketmeta/internal/observability"
	"github.com/3leaps/bucketmeta/pkg/manifest"
)

var scrapeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scrape job file",
	Long: `Run a scrape as defined in a YAML or JSON job file.

The job names the provider connection, the bucket and prefixes or the object
paths to scrape, match and filter rules, and the output destination.

Example:
  bucketmeta scrape run --job scrape.yaml
  bucketmeta scrape run --job scrape.yaml --output inventory.tsv
  bucketmeta scrape run --job scrape.yaml --dry-run`,
	RunE: runScrapeRun,
}

var (
	runJobPath string
	runOutput  string
	runDryRun  bool
)

func init() {
	scrapeCmd.AddCommand(scrapeRunCmd)

	scrapeRunCmd.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to job file (required)")
	scrapeRunCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Override output destination")
	scrapeRunCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate the job and show the plan without scraping")

	_ = scrapeRunCmd.MarkFlagRequired("job")
}

func runScrapeRun(cmd *cobra.Command, _ []string) error {
	m, err := loadJob(runJobPath, runOutput)
	if err != nil {
		return err
	}
	if runDryRun {
		return showScrapePlan(cmd.OutOrStdout(), m)
	}
	return runScrapeJob(cmd.Context(), m, appConfig, cmd.OutOrStdout())
}

// loadJob loads the job at path and applies the output override.
func loadJob(path, outputOverride string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err != nil {
		observability.CLILogger.Error("Failed to load job",
			zap.String("path", path),
			zap.Error(err))
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(foundry.ExitFileNotFound, "Job file not found", err)
		}
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid job", err)
	}

	observability.CLILogger.Debug("Loaded job",
		zap.String("path", path),
		zap.String("provider", m.Connection.Provider),
		zap.String("bucket", m.Scrape.Bucket),
		zap.Int("paths", len(m.Scrape.Paths)))

	if outputOverride != "" {
		m.Output.Destination = outputOverride
	}
	return m, nil
}
