package bworker

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel is more verbose than debug. It is used for the incoming request line.
const TraceLevel = zapcore.DebugLevel - 1

// ParseLevel parses one of trace, debug, info, warn, error or fatal (case-insensitive).
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, errors.Newf("unknown log level: %q", s)
	}
}

// LevelEncoder encodes levels in lowercase and knows about [TraceLevel].
func LevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}

	zapcore.LowercaseLevelEncoder(l, enc)
}

// leveledCore filters entries with its own level instead of the wrapped core's level. Entries
// that pass are written to the wrapped core directly, so the level can be lowered as well as
// raised without touching the shared logger.
type leveledCore struct {
	zapcore.Core
	level zapcore.Level
}

func (c *leveledCore) Enabled(l zapcore.Level) bool { return c.level.Enabled(l) }

func (c *leveledCore) Level() zapcore.Level { return c.level }

func (c *leveledCore) With(fields []zapcore.Field) zapcore.Core {
	return &leveledCore{Core: c.Core.With(fields), level: c.level}
}

func (c *leveledCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c.Core)
}

// withLevel returns a child of logs that logs at lvl. The parent is left untouched.
func withLevel(logs *zap.Logger, lvl zapcore.Level) *zap.Logger {
	return logs.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		if lc, ok := c.(*leveledCore); ok {
			c = lc.Core
		}

		return &leveledCore{Core: c, level: lvl}
	}))
}

// logTrace logs at [TraceLevel].
func logTrace(logs *zap.Logger, msg string, fields ...zap.Field) {
	if ce := logs.Check(TraceLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}
