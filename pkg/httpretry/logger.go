package httpretry

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// leveledLogger routes retryablehttp's logging to zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

func (l *leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l *leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
