package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/bucketmeta/internal/config"
	"github.com/3leaps/bucketmeta/internal/observability"
	"github.com/3leaps/bucketmeta/pkg/manifest"
	"github.com/3leaps/bucketmeta/pkg/output"
	"github.com/3leaps/bucketmeta/pkg/provider"
	"github.com/3leaps/bucketmeta/pkg/scrape"
)

var statCmd = &cobra.Command{
	Use:   "stat <uri>...",
	Short: "Show metadata for individual objects (JSONL)",
	Long: `Look up individual objects directly instead of listing their bucket.

Unlike 'scrape paths', stat reports content type and user metadata, and a
missing object is reported as a NOT_FOUND error record rather than skipped.
Errors are emitted on stdout as bucketmeta.error.v1 records; the command
exits non-zero if any lookup failed.

Examples:
  bucketmeta stat s3://my-bucket/logs/2024/01/app.log
  bucketmeta stat gs://a/one.json gs://b/two.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStat,
}

var statFlags connectionFlags

func init() {
	rootCmd.AddCommand(statCmd)
	statFlags.register(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	conn := statFlags.connection()
	if conn.Provider == "" {
		pt, err := pathsProvider(args)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid object URI", err)
		}
		conn.Provider = pt.String()
	}
	return statObjects(cmd.Context(), conn, args, appConfig, cmd)
}

// statObjects heads each path and writes one object or error record per path.
func statObjects(ctx context.Context, conn manifest.ConnectionConfig, paths []string, cfg *config.Config, cmd *cobra.Command) error {
	if cfg == nil {
		cfg = &config.Config{}
	}
	runID := uuid.New().String()
	log := observability.CLILogger.With(zap.String("run_id", runID))

	type target struct{ bucket, key string }
	targets := make([]target, len(paths))
	for i, p := range paths {
		bucket, key, err := scrape.ParsePath(p)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid object URI", err)
		}
		targets[i] = target{bucket, key}
	}

	opener, closeOpener, err := newOpener(ctx, conn, cfg)
	if err != nil {
		return openerExitError(log, err)
	}
	defer closeOpener()

	w := output.NewJSONLWriter(cmd.OutOrStdout(), runID, conn.Provider)
	defer func() { _ = w.Close() }()

	providers := make(map[string]provider.Provider)
	defer func() {
		for _, p := range providers {
			_ = p.Close()
		}
	}()

	failed := 0
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return exitError(foundry.ExitSignalInt, "Stat cancelled", err)
		}

		p, ok := providers[t.bucket]
		if !ok {
			if p, err = opener.Open(ctx, t.bucket); err != nil {
				failed++
				_ = w.WriteError(ctx, errorRecord(t.bucket, err))
				continue
			}
			providers[t.bucket] = p
		}

		meta, err := p.Head(ctx, t.key)
		if err != nil {
			failed++
			rec := errorRecord(t.bucket, err)
			rec.Prefix = t.key
			_ = w.WriteError(ctx, rec)
			continue
		}
		if err := w.WriteObject(ctx, statRecord(t.bucket, meta)); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}

	log.Debug("Stat completed", zap.Int("objects", len(targets)), zap.Int("failed", failed))
	if failed > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Stat failed",
			fmt.Errorf("%d of %d lookups failed", failed, len(targets)))
	}
	return nil
}

func statRecord(bucket string, meta *provider.ObjectMeta) *output.ObjectRecord {
	size := meta.Size
	return &output.ObjectRecord{
		Bucket:       bucket,
		Key:          meta.Key,
		Size:         &size,
		ETag:         scrape.NormalizeETag(meta.ETag),
		LastModified: meta.LastModified,
		StorageClass: meta.StorageClass,
		ContentType:  meta.ContentType,
		Metadata:     meta.Metadata,
	}
}
