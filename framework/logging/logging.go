package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/km-arc/go-scoped/framework/config"
)

var configureMu sync.Mutex

// New builds a logger from cfg writing to stdout.
//
//	logger := logging.New(cfg.Log).With().Str("app", cfg.App.Name).Logger()
func New(cfg config.LogConfig) zerolog.Logger {
	return NewWriter(os.Stdout, cfg)
}

// NewWriter builds a logger from cfg writing to w.
func NewWriter(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{
			Out:          w,
			TimeFormat:   time.RFC3339,
			NoColor:      w != os.Stdout,
			PartsExclude: timestampPart(cfg.Timestamp),
		}
	}
	level, _ := ParseLevel(cfg.Level)
	ctx := zerolog.New(w).Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func timestampPart(enabled bool) []string {
	if enabled {
		return nil
	}
	return []string{zerolog.TimestampFieldName}
}

// Configure installs the logger built from cfg as the global zerolog logger,
// replacing the previous one.
func Configure(cfg config.LogConfig) {
	ConfigureWriter(os.Stdout, cfg)
}

// ConfigureWriter is Configure writing to w.
func ConfigureWriter(w io.Writer, cfg config.LogConfig) {
	configureMu.Lock()
	defer configureMu.Unlock()
	log.Logger = NewWriter(w, cfg)
}

// ForTest returns a debug-level logger that writes through t.Log.
// Do not use it for values whose containers outlive the test.
func ForTest(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

// ParseLevel maps a level name to a zerolog level. Unknown or empty names
// report false and yield InfoLevel.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
