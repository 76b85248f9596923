package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, "deep-researcher-api", "info")

	logger.Info("api listening", "port", "8080")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["service"] != "deep-researcher-api" {
		t.Fatalf("expected service attr, got %v", entry["service"])
	}
	if entry["msg"] != "api listening" || entry["port"] != "8080" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewJSONLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, "worker", "warn")

	logger.Info("suppressed")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("info record should be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
