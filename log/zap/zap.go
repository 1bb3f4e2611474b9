// Package zap adapts a *zap.Logger to livecache.Logger.
package zap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/livecache"
)

type Logger struct{ L *zap.Logger }

var _ livecache.Logger = Logger{}

// New names the logger "livecache" so cache events are easy to filter.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("livecache")} }

func (z Logger) Debug(msg string, f livecache.Fields) { z.log(zapcore.DebugLevel, msg, f) }
func (z Logger) Info(msg string, f livecache.Fields)  { z.log(zapcore.InfoLevel, msg, f) }
func (z Logger) Warn(msg string, f livecache.Fields)  { z.log(zapcore.WarnLevel, msg, f) }
func (z Logger) Error(msg string, f livecache.Fields) { z.log(zapcore.ErrorLevel, msg, f) }

// log skips building fields when the level is disabled; the cache logs
// debug events while holding its lock.
func (z Logger) log(lvl zapcore.Level, msg string, f livecache.Fields) {
	ce := z.L.Check(lvl, msg)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == livecache.ErrKey {
			fields = append(fields, zap.Error(err))
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	ce.Write(fields...)
}
