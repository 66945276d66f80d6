package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/crucible"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketmeta/internal/config"
	"github.com/3leaps/bucketmeta/internal/observability"
	"github.com/3leaps/bucketmeta/pkg/provider"
	"github.com/3leaps/bucketmeta/pkg/provider/minio"
)

var doctorProvider string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  bucketmeta doctor                 # Environment checks
  bucketmeta doctor --provider s3   # Plus AWS credential and region checks
  bucketmeta doctor --provider gcs  # Plus GCS credential checks`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3, gcs, minio, file)")
}

// doctorCheck is one diagnostic. run returns a short detail on success.
// A warn check reports a failure without failing the command.
type doctorCheck struct {
	name string
	warn bool
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	if cfg == nil {
		cfg = &config.Config{}
	}

	checks := baseChecks()
	if doctorProvider != "" {
		pt, ok := provider.ParseProviderType(doctorProvider)
		if !ok {
			return exitError(foundry.ExitInvalidArgument, "Invalid --provider",
				fmt.Errorf("%w: %s", ErrUnsupportedProvider, doctorProvider))
		}
		checks = append(checks, providerChecks(pt, cfg)...)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "=== %s doctor ===\n\n", binaryName)

	failed := runChecks(cmd.Context(), out, checks)

	_, _ = fmt.Fprintln(out)
	if failed > 0 {
		_, _ = fmt.Fprintf(out, "❌ %d check(s) failed. Review the output above for details.\n", failed)
		return exitError(foundry.ExitExternalServiceUnavailable, "Diagnostics failed",
			fmt.Errorf("%d of %d checks failed", failed, len(checks)))
	}
	_, _ = fmt.Fprintf(out, "✅ All checks passed! Your %s installation is healthy.\n", binaryName)
	return nil
}

// runChecks prints one line per check and returns the number of hard failures.
func runChecks(ctx context.Context, out io.Writer, checks []doctorCheck) int {
	failed := 0
	for i, c := range checks {
		detail, err := c.run(ctx)
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), c.name)
		switch {
		case err == nil:
			_, _ = fmt.Fprintf(out, "%s ✅ %s\n", prefix, detail)
			observability.CLILogger.Debug("Check passed", zap.String("check", c.name), zap.String("detail", detail))
		case c.warn:
			_, _ = fmt.Fprintf(out, "%s ⚠️  %v\n", prefix, err)
			observability.CLILogger.Debug("Check warned", zap.String("check", c.name), zap.Error(err))
		default:
			_, _ = fmt.Fprintf(out, "%s ❌ %v\n", prefix, err)
			observability.CLILogger.Debug("Check failed", zap.String("check", c.name), zap.Error(err))
			failed++
		}
	}
	return failed
}

func baseChecks() []doctorCheck {
	return []doctorCheck{
		{name: "Go version", warn: true, run: func(context.Context) (string, error) {
			v := runtime.Version()
			if v < "go1.23" {
				return "", fmt.Errorf("%s (recommended: go1.23+)", v)
			}
			return v, nil
		}},
		{name: "Crucible access", run: func(context.Context) (string, error) {
			v := crucible.GetVersion()
			if v.Crucible == "" {
				return "", errors.New("cannot access Crucible")
			}
			return "v" + v.Crucible, nil
		}},
		{name: "Gofulmen access", run: func(context.Context) (string, error) {
			v := crucible.GetVersion()
			if v.Gofulmen == "" {
				return "", errors.New("cannot access Gofulmen")
			}
			return "v" + v.Gofulmen, nil
		}},
		{name: "config directory", run: func(context.Context) (string, error) {
			dir, err := os.UserConfigDir()
			if err != nil {
				return "", fmt.Errorf("cannot find config directory: %w", err)
			}
			return dir, nil
		}},
		{name: "data directory", warn: true, run: func(context.Context) (string, error) {
			dir := gfconfig.GetAppDataDir(config.AppName)
			if dir == "" {
				return "", errors.New("cannot resolve data directory")
			}
			return dir, nil
		}},
		{name: "environment", run: func(context.Context) (string, error) {
			return runtime.GOOS + "/" + runtime.GOARCH, nil
		}},
	}
}

func providerChecks(pt provider.ProviderType, cfg *config.Config) []doctorCheck {
	switch pt {
	case provider.ProviderGCS:
		return []doctorCheck{
			{name: "GCS credentials", run: func(context.Context) (string, error) {
				if cfg.GCS.Endpoint != "" {
					return "emulator at " + cfg.GCS.Endpoint + " (no auth)", nil
				}
				path := cfg.GCS.CredentialsFile
				if path == "" {
					return "application default credentials", nil
				}
				if _, err := os.Stat(path); err != nil {
					return "", fmt.Errorf("credentials file: %w", err)
				}
				return path, nil
			}},
		}

	case provider.ProviderMinIO:
		return []doctorCheck{
			{name: "MinIO configuration", run: func(context.Context) (string, error) {
				mc := minio.Config{
					Endpoint:  cfg.MinIO.Endpoint,
					AccessKey: cfg.MinIO.AccessKey,
					SecretKey: cfg.MinIO.SecretKey,
				}
				if err := mc.Validate(); err != nil {
					return "", err
				}
				if mc.AccessKey == "" {
					return mc.Endpoint + " (anonymous)", nil
				}
				return fmt.Sprintf("%s (access key %s)", mc.Endpoint, maskAccessKey(mc.AccessKey)), nil
			}},
		}

	case provider.ProviderFile:
		return []doctorCheck{
			{name: "base directory", run: func(context.Context) (string, error) {
				dir := firstNonEmpty(cfg.File.BaseDir, ".")
				st, err := os.Stat(dir)
				if err != nil {
					return "", err
				}
				if !st.IsDir() {
					return "", fmt.Errorf("%s is not a directory", dir)
				}
				return dir, nil
			}},
		}

	default:
		return []doctorCheck{
			{name: "AWS credentials", run: func(ctx context.Context) (string, error) {
				return checkAWSCredentials(ctx, cfg.S3.Profile)
			}},
			{name: "AWS region", warn: true, run: func(ctx context.Context) (string, error) {
				return checkAWSRegion(ctx, cfg.S3.Profile, cfg.S3.Region)
			}},
		}
	}
}

func loadAWSConfig(ctx context.Context, profile string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func checkAWSCredentials(ctx context.Context, profile string) (string, error) {
	ac, err := loadAWSConfig(ctx, profile)
	if err != nil {
		return "", fmt.Errorf("cannot load AWS config: %w%s", err, awsCredentialsHelp)
	}
	creds, err := ac.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot retrieve credentials: %w%s", err, awsCredentialsHelp)
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("access key %s from %s", maskAccessKey(creds.AccessKeyID), source), nil
}

// checkAWSRegion reports the configured region, falling back to the EC2
// instance metadata service when nothing is configured.
func checkAWSRegion(ctx context.Context, profile, configured string) (string, error) {
	if configured != "" {
		return configured + " (bucketmeta config)", nil
	}
	ac, err := loadAWSConfig(ctx, profile)
	if err == nil && ac.Region != "" {
		return ac.Region + " (AWS config)", nil
	}
	if strings.EqualFold(os.Getenv("AWS_EC2_METADATA_DISABLED"), "true") {
		return "", errors.New("no region configured; S3 defaults to us-east-1")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := imds.NewFromConfig(ac).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", errors.New("no region configured and instance metadata unavailable; S3 defaults to us-east-1")
	}
	return out.Region + " (instance metadata)", nil
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

const awsCredentialsHelp = `

  To configure AWS credentials:
    1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or
    2. Run 'aws configure' or 'aws sso login' and pass --profile, or
    3. Use an IAM role when running on AWS infrastructure`
