package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/registry-core/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	for _, cfg := range []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
		{},
	} {
		if New(cfg, "1.0.0") == nil {
			t.Fatalf("New(%+v) returned nil", cfg)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// decodeLine parses the single JSON entry in buf.
func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log output is not one JSON object: %v\n%s", err, buf.String())
	}
	return entry
}

func TestNewWithWriter_DefaultAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "2.1.0")

	logger.Info("registry created", "registry", "R", "owner", "A")

	entry := decodeLine(t, &buf)
	want := map[string]any{
		"msg":      "registry created",
		"service":  ServiceName,
		"version":  "2.1.0",
		"registry": "R",
		"owner":    "A",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "json"}, "test")

	logger.Info("device added")
	logger.Debug("lookup")
	if buf.Len() != 0 {
		t.Fatalf("entries below warn were written:\n%s", buf.String())
	}

	logger.Warn("audit queue full")
	if !strings.Contains(buf.String(), "audit queue full") {
		t.Errorf("warn entry missing:\n%s", buf.String())
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "text"}, "test")

	logger.Info("store loaded", "registries", 2)

	out := buf.String()
	for _, want := range []string{"msg=\"store loaded\"", "registries=2", "service=" + ServiceName} {
		if !strings.Contains(out, want) {
			t.Errorf("text output %q missing %q", out, want)
		}
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")

	logger.Component("store").Info("contract loaded")

	entry := decodeLine(t, &buf)
	if entry["component"] != "store" || entry["service"] != ServiceName {
		t.Errorf("entry = %v, want component=store with service attrs", entry)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	if logger.Component("x") == nil {
		t.Fatal("Component() on discard logger returned nil")
	}
}
