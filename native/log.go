package native

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel is a native log severity.
type LogLevel int32

const (
	LogTrace       LogLevel = 10
	LogDebug       LogLevel = 20
	LogInformation LogLevel = 30
	LogImportant   LogLevel = 40
	LogWarning     LogLevel = 50
	LogError       LogLevel = 60
	LogFatal       LogLevel = 70
)

func (l LogLevel) String() string {
	switch l {
	case LogTrace:
		return "trace"
	case LogDebug:
		return "debug"
	case LogInformation:
		return "information"
	case LogImportant:
		return "important"
	case LogWarning:
		return "warning"
	case LogError:
		return "error"
	case LogFatal:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// ParseLogLevel parses a level name as produced by LogLevel.String.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "trace":
		return LogTrace, nil
	case "debug":
		return LogDebug, nil
	case "information", "info":
		return LogInformation, nil
	case "important":
		return LogImportant, nil
	case "warning", "warn":
		return LogWarning, nil
	case "error":
		return LogError, nil
	case "fatal":
		return LogFatal, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// LogPayload is one key/value attached to a log entry.
type LogPayload struct {
	Value any
	Key   string
}

// LogFunc receives native log entries. The return value reports whether
// the entry was handled.
type LogFunc func(level LogLevel, timestamp time.Time, domain, code string, payload []LogPayload, file string, line int) bool

type logSink struct {
	fn LogFunc
}

// SetLogFunction installs fn as the log sink and sets the threshold.
// A nil fn disables native logging.
func (l *Library) SetLogFunction(fn LogFunc, level LogLevel) {
	l.level.Store(int32(level))
	if fn == nil {
		l.sink.Store(nil)
		return
	}
	l.sink.Store(&logSink{fn: fn})
}

// SetLogLevel changes the threshold without touching the sink.
func (l *Library) SetLogLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// LogLevel returns the current threshold.
func (l *Library) LogLevel() LogLevel {
	return LogLevel(l.level.Load())
}

func (l *Library) log(level LogLevel, domain, code string, payload ...LogPayload) {
	if level < LogLevel(l.level.Load()) {
		return
	}
	sink := l.sink.Load()
	if sink == nil {
		return
	}
	file, line := callerSite(2)
	sink.fn(level, time.Now(), domain, code, payload, file, line)
}
