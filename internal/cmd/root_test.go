package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	// Save original values
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := exitError(foundry.ExitInvalidArgument, "Invalid job", cause)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, foundry.ExitInvalidArgument, exitErr.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, fmt.Sprintf("Invalid job: boom (exit code %d)", foundry.ExitInvalidArgument), err.Error())

	bare := &ExitError{Code: 3, Message: "Diagnostics failed"}
	assert.Equal(t, "Diagnostics failed (exit code 3)", bare.Error())
}

// execute runs the CLI with args in an isolated home directory.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	code := Execute(context.Background())
	return buf.String(), code
}

func TestExecute_Version(t *testing.T) {
	out, code := execute(t, "version")
	assert.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, binaryName+" "), out)
	require.NotNil(t, appConfig)
	assert.Equal(t, 5, appConfig.Scrape.Workers)
}

func TestExecute_ExitCodes(t *testing.T) {
	_, code := execute(t, "scrape", "run", "--job", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, foundry.ExitFileNotFound, code)

	_, code = execute(t, "no-such-command")
	assert.Equal(t, 1, code)
}

func TestExecute_ScrapeBucket(t *testing.T) {
	root := fileStore(t)
	out, code := execute(t, "scrape", "bucket", "file://data/logs/", "--base-dir", root)
	require.Equal(t, 0, code, out)

	res := decodeOutput(t, []byte(out))
	assert.ElementsMatch(t, []string{"logs/a.txt", "logs/b.txt"}, objectKeys(res.objects))
	require.NotNil(t, res.summary)
	assert.Equal(t, 2, res.summary.Records)
}
