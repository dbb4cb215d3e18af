package debug

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvDebug    = "SOCKETQ_DEBUG"
	EnvLogLevel = "SOCKETQ_LOG_LEVEL"
)

var (
	enabled atomic.Bool

	mu     sync.RWMutex
	logger zerolog.Logger
)

func init() {
	if v, ok := parseBool(os.Getenv(EnvDebug)); ok {
		enabled.Store(v)
	}
	configure(os.Stderr, levelFromEnv())
}

func configure(out io.Writer, level zerolog.Level) {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	l := zerolog.New(output).With().Timestamp().Logger().Level(level)

	mu.Lock()
	logger = l
	mu.Unlock()
}

func levelFromEnv() zerolog.Level {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		return lvl
	}
	if enabled.Load() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// Logger returns the process logger. Components derive their own with
// Logger().With().Str("component", ...).
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetOutput replaces the logger sink, keeping the current level.
func SetOutput(out io.Writer) {
	configure(out, Logger().GetLevel())
}

// SetLevel changes the level of the process logger.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	logger = logger.Level(level)
	mu.Unlock()
}

// Printf writes a debug line when tracing is enabled.
func Printf(format string, v ...interface{}) {
	if !enabled.Load() {
		return
	}
	l := Logger()
	l.Debug().Msgf(format, v...)
}

// Enabled reports whether tracing is on.
func Enabled() bool {
	return enabled.Load()
}

func Enable() {
	enabled.Store(true)
	if Logger().GetLevel() > zerolog.DebugLevel {
		SetLevel(zerolog.DebugLevel)
	}
}

func Disable() {
	enabled.Store(false)
}

// ParseLevel maps a level name to a zerolog level. The second result is
// false for empty or unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
