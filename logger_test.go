package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	t.Run("Rejects unknown level", func(t *testing.T) {
		if _, err := NewLogger(LogConfig{Level: "loud", Output: "stderr"}); err == nil {
			t.Error("expected error for invalid level")
		}
	})

	t.Run("Console to stdout", func(t *testing.T) {
		logger, err := NewLogger(LogConfig{Level: "debug", Format: "console", Output: "stdout"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !logger.Core().Enabled(zap.DebugLevel) {
			t.Error("expected debug level to be enabled")
		}
	})

	t.Run("Rotated file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "btconf.log")
		logger, err := NewLogger(LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     path,
			MaxSize:    1,
			MaxBackups: 1,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		logger.Debug("Hidden")
		logger.Info("Batch completed", zap.String("batch", "read"))
		logger.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected 1 log line, got %d: %q", len(lines), data)
		}

		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		if entry["message"] != "Batch completed" || entry["level"] != "info" || entry["batch"] != "read" {
			t.Errorf("unexpected log entry: %v", entry)
		}
		if _, ok := entry["timestamp"]; !ok {
			t.Error("expected timestamp key")
		}
	})
}
