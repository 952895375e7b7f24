package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
	}{
		{"json to stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text to stderr", LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"discard", LoggingConfig{Level: "warn", Output: "discard"}},
		{"defaults", LoggingConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := NewLogger(tt.config); logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Info("write region spilled", "buffer", "orders", "slot", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "write region spilled" {
		t.Errorf("msg = %v, want write region spilled", entry["msg"])
	}
	if entry["buffer"] != "orders" {
		t.Errorf("buffer = %v, want orders", entry["buffer"])
	}
	if entry["slot"] != float64(3) {
		t.Errorf("slot = %v, want 3", entry["slot"])
	}
}

func TestNewLoggerWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.With("graph", "orders-etl").Debug("edge summary", "spills", 2)

	output := buf.String()
	for _, want := range []string{"edge summary", "graph=orders-etl", "spills=2"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q does not contain %q", output, want)
		}
	}
}

func TestNewLoggerWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("output contains filtered entries: %s", output)
	}
	if !strings.Contains(output, "shown") {
		t.Errorf("output is missing the warning: %s", output)
	}
}
