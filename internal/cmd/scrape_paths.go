package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketmeta/pkg/manifest"
	"github.com/3leaps/bucketmeta/pkg/provider"
)

var scrapePathsCmd = &cobra.Command{
	Use:   "paths [uri...]",
	Short: "Scrape metadata for an explicit list of objects",
	Long: `Scrape metadata for exactly the given object paths. Paths may span several
buckets; each bucket is listed once under the common prefix of its keys.

Paths come from arguments, from --from-file (one per line, blank lines and
# comments skipped), or both. Use --from-file - to read stdin. All paths
must share one provider; the URI scheme selects it unless --provider is set.

Examples:
  bucketmeta scrape paths s3://logs/2024/01/a.gz s3://logs/2024/02/b.gz
  bucketmeta scrape paths --from-file keys.txt -o meta.csv
  cat keys.txt | bucketmeta scrape paths --from-file - --all-versions`,
	RunE: runScrapePaths,
}

var (
	pathsFlags    scrapeFlags
	pathsFromFile string
)

func init() {
	scrapeCmd.AddCommand(scrapePathsCmd)
	pathsFlags.register(scrapePathsCmd)
	scrapePathsCmd.Flags().StringVar(&pathsFromFile, "from-file", "", "Read object paths from file (- for stdin)")
}

func runScrapePaths(cmd *cobra.Command, args []string) error {
	paths := append([]string(nil), args...)
	if pathsFromFile != "" {
		fromFile, err := readPathList(pathsFromFile, cmd.InOrStdin())
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to read path list", err)
		}
		paths = append(paths, fromFile...)
	}

	m, err := pathsManifest(&pathsFlags, paths)
	if err != nil {
		return err
	}
	if pathsFlags.dryRun {
		return showScrapePlan(cmd.OutOrStdout(), m)
	}
	return runScrapeJob(cmd.Context(), m, appConfig, cmd.OutOrStdout())
}

// pathsManifest turns object paths into a validated job.
func pathsManifest(f *scrapeFlags, paths []string) (*manifest.Manifest, error) {
	if len(paths) == 0 {
		return nil, exitError(foundry.ExitInvalidArgument, "No object paths",
			fmt.Errorf("pass paths as arguments or with --from-file"))
	}

	pt, err := pathsProvider(paths)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid object paths", err)
	}
	if pt, err = resolveProvider(f.provider, pt); err != nil {
		return nil, err
	}

	m := f.manifest()
	m.Scrape.Paths = paths
	m.Connection.Provider = pt.String()

	applyConfig(m, appConfig)
	if err := manifest.Validate(m); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid scrape options", err)
	}
	return m, nil
}

// pathsProvider derives the provider from the paths' URI schemes.
func pathsProvider(paths []string) (provider.ProviderType, error) {
	var found provider.ProviderType
	for _, p := range paths {
		scheme, _, ok := strings.Cut(p, "://")
		if !ok {
			return "", fmt.Errorf("%w: %q: missing scheme", ErrInvalidURI, p)
		}
		pt, ok := provider.ParseProviderType(strings.ToLower(scheme))
		if !ok || scheme == "" {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, scheme)
		}
		if found != "" && pt != found {
			return "", fmt.Errorf("paths mix providers %s and %s", found, pt)
		}
		found = pt
	}
	return found, nil
}

// readPathList reads one path per line from name, or from stdin for "-".
func readPathList(name string, stdin io.Reader) ([]string, error) {
	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var paths []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}
