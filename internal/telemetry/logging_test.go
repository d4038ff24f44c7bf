package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogOptionsFromEnv(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		level  slog.Level
		format string
	}{
		{"defaults", nil, slog.LevelInfo, "json"},
		{"lower case level", map[string]string{"LOG_LEVEL": "debug"}, slog.LevelDebug, "json"},
		{"upper case level", map[string]string{"LOG_LEVEL": "WARN"}, slog.LevelWarn, "json"},
		{"unknown level", map[string]string{"LOG_LEVEL": "loud"}, slog.LevelInfo, "json"},
		{"text format", map[string]string{"LOG_FORMAT": "TEXT"}, slog.LevelInfo, "text"},
		{"unknown format", map[string]string{"LOG_FORMAT": "xml"}, slog.LevelInfo, "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := LogOptionsFromEnv(func(k string) string { return tt.env[k] })
			if opts.Level != tt.level || opts.Format != tt.format {
				t.Errorf("got %+v, want level=%v format=%s", opts, tt.level, tt.format)
			}
		})
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, LogOptions{Level: slog.LevelInfo, Format: "json"}).Debug("hidden")
	NewLogger(&buf, LogOptions{Level: slog.LevelInfo, Format: "json"}).Info("shown", "job", "stable")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON entry, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shown" || entry["job"] != "stable" {
		t.Errorf("unexpected entry: %v", entry)
	}

	buf.Reset()
	NewLogger(&buf, LogOptions{Level: slog.LevelInfo, Format: "text"}).Info("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestLoggerContext(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if FromContextOr(context.Background(), fallback) != fallback {
		t.Error("expected fallback for empty context")
	}

	logger := WithJob(fallback, "stable", 0)
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger || FromContextOr(ctx, fallback) != logger {
		t.Error("expected logger from context")
	}
}
