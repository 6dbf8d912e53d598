package freelan

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/freelan-binding/native"
)

// zapLevel maps a native severity onto the closest zap level. Fatal entries
// are logged at error level; a native fatal never exits the process.
func zapLevel(level native.LogLevel) zapcore.Level {
	switch {
	case level < native.LogInformation:
		return zapcore.DebugLevel
	case level < native.LogWarning:
		return zapcore.InfoLevel
	case level < native.LogError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// newLogBridge returns a native log function writing to l.
func newLogBridge(l *zap.Logger) native.LogFunc {
	return func(level native.LogLevel, ts time.Time, domain, code string, payload []native.LogPayload, file string, line int) bool {
		ce := l.Check(zapLevel(level), code)
		if ce == nil {
			return false
		}
		ce.Time = ts

		fields := make([]zap.Field, 0, len(payload)+4)
		fields = append(fields,
			zap.String("domain", domain),
			zap.Stringer("native_level", level),
			zap.String("site", file),
			zap.Int("line", line),
		)
		for _, p := range payload {
			fields = append(fields, zap.Any(p.Key, p.Value))
		}
		ce.Write(fields...)
		return true
	}
}
