package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewHandler_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "json", "info"))
	logger.Info("deployment started", "project", "webapp")

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("JSON handler produced no output")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, line)
	}
	if obj["msg"] != "deployment started" {
		t.Errorf("msg = %v, want deployment started", obj["msg"])
	}
	if obj["project"] != "webapp" {
		t.Errorf("project = %v, want webapp", obj["project"])
	}
}

func TestNewHandler_TextFormatByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "", "info"))
	logger.Info("webhook delivered", "event", "deployment.completed")

	line := buf.String()
	if !strings.Contains(line, "webhook delivered") {
		t.Errorf("text output missing message: %q", line)
	}
	if !strings.Contains(line, "event=deployment.completed") {
		t.Errorf("text output missing event attr: %q", line)
	}
}

func TestNewHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "json", "warn"))
	logger.Info("suppressed")
	logger.Warn("visible")

	output := buf.String()
	if strings.Contains(output, "suppressed") {
		t.Error("info record appeared despite warn level")
	}
	if !strings.Contains(output, "visible") {
		t.Error("warn record was unexpectedly suppressed")
	}
}

func TestNewHandler_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "json", "debug"))
	logger.Debug("tracing")

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &obj); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := obj["source"]; !ok {
		t.Error("debug level output missing source attribute")
	}
}

func TestSetupLogger_DoesNotPanic(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
			SetupLogger(format, level)
		}
	}
	// Restore a quiet default so other tests in this binary are unaffected.
	SetupLogger("text", "error")
}
