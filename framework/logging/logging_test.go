package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/km-arc/go-scoped/framework/config"
	"github.com/km-arc/go-scoped/framework/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw   string
		want  zerolog.Level
		known bool
	}{
		{"trace", zerolog.TraceLevel, true},
		{"DEBUG", zerolog.DebugLevel, true},
		{" info ", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := logging.ParseLevel(tt.raw)
			if got != tt.want || ok != tt.known {
				t.Errorf("got (%v, %v), want (%v, %v)", got, ok, tt.want, tt.known)
			}
		})
	}
}

func TestNewWriter_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriter(&buf, config.LogConfig{Level: "warn", Format: "json"})

	logger.Info().Msg("dropped")
	logger.Warn().Str("scope", "app").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines: got %d, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["message"] != "kept" || entry["scope"] != "app" {
		t.Errorf("entry: got %v", entry)
	}
	if _, ok := entry["time"]; ok {
		t.Error("timestamp should be absent when disabled")
	}
}

func TestNewWriter_ConsoleWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriter(&buf, config.LogConfig{Level: "debug", Format: "console", Timestamp: true})

	logger.Debug().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, "DBG") {
		t.Errorf("console output: got %q", out)
	}
}

func TestConfigureWriter_ReplacesGlobal(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var first, second bytes.Buffer
	logging.ConfigureWriter(&first, config.LogConfig{Level: "info", Format: "json"})
	log.Info().Msg("one")
	log.Debug().Msg("hidden")

	logging.ConfigureWriter(&second, config.LogConfig{Level: "debug", Format: "json"})
	log.Debug().Msg("two")

	if !strings.Contains(first.String(), `"message":"one"`) || strings.Contains(first.String(), "hidden") {
		t.Errorf("first writer: got %q", first.String())
	}
	if strings.Contains(first.String(), "two") || !strings.Contains(second.String(), `"message":"two"`) {
		t.Errorf("second writer: got %q", second.String())
	}
}
