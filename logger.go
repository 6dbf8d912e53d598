package freelan

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the binding's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the binding's logger. Native log entries forwarded
// by the log bridge are written to it under the "native" name.
// This must be called before Open.
func SetLogger(l *zap.Logger) {
	logger = l
}
