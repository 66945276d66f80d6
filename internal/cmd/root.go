// Package cmd implements the bucketmeta command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketmeta/internal/config"
	"github.com/3leaps/bucketmeta/internal/observability"
)

const binaryName = "bucketmeta"

// VersionInfo is stamped into the binary at build time.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

var versionInfo = VersionInfo{Version: "dev", Commit: "none", BuildDate: "unknown"}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	logLevel string
	verbose  bool

	// appConfig is resolved in PersistentPreRunE before any command runs.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Scrape object storage bucket metadata",
	Long: `bucketmeta enumerates objects in S3, MinIO, GCS or local buckets and
records their metadata (key, size, last-modified, ETag, storage class and,
for versioned buckets, every version and delete marker).

Records stream to stdout as JSON lines or are written to CSV/TSV files.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./bucketmeta.yaml, then the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func initRuntime(cmd *cobra.Command, _ []string) error {
	config.SetConfigFile(cfgFile)

	var overrides []map[string]any
	if logLevel != "" {
		overrides = append(overrides, map[string]any{"logging": map[string]any{"level": logLevel}})
	}

	cfg, err := config.Load(cmd.Context(), overrides...)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appConfig = cfg

	observability.SetLevel(cfg.Logging.Level)
	observability.InitCLILogger(binaryName, verbose)
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("log_level", cfg.Logging.Level),
		zap.Int("workers", cfg.Scrape.Workers))
	return nil
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, "Error:", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
