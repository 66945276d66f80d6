// Package observability holds the process-wide CLI logger.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by commands. It is a no-op until
// InitCLILogger runs, so packages may log during tests without setup.
var CLILogger = zap.NewNop()

// InitCLILogger replaces CLILogger with a console logger on stderr.
//
// verbose forces debug level; otherwise the level comes from
// SetLevel (default info).
func InitCLILogger(service string, verbose bool) {
	lvl := level
	if verbose {
		lvl = zapcore.DebugLevel
	}
	CLILogger = NewCLILogger(service, lvl, zapcore.Lock(os.Stderr))
}

var level = zapcore.InfoLevel

// SetLevel sets the level used by the next InitCLILogger call. Unknown
// names leave the level unchanged and return false.
func SetLevel(name string) bool {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return false
	}
	level = l
	return true
}

// NewCLILogger builds a console-encoded logger writing to ws.
func NewCLILogger(service string, lvl zapcore.Level, ws zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, zap.NewAtomicLevelAt(lvl))
	return zap.New(core).Named(service)
}
