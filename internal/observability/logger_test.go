package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewCLILogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCLILogger("bucketmeta", zapcore.InfoLevel, zapcore.AddSync(&buf))

	logger.Debug("hidden")
	logger.Info("Bucket scraped", zap.String("bucket", "b1"))
	_ = logger.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "bucketmeta")
	assert.Contains(t, out, "Bucket scraped")
	assert.Contains(t, out, `"bucket": "b1"`)
}

func TestSetLevel(t *testing.T) {
	orig := level
	t.Cleanup(func() { level = orig })

	assert.True(t, SetLevel("WARN"))
	assert.Equal(t, zapcore.WarnLevel, level)

	assert.False(t, SetLevel("loud"))
	assert.Equal(t, zapcore.WarnLevel, level)
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	t.Cleanup(func() { CLILogger = orig })

	InitCLILogger("bucketmeta", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))
}
