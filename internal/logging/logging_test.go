package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("warn", &buf)
	log.Info("hidden")
	log.Warn("shown")
	_ = log.Sync()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["level"] != "WARN" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatal("missing timestamp key")
	}
}

func TestNewLoggerUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("chatty", &buf)
	log.Debug("hidden")
	log.Info("shown")
	_ = log.Sync()
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Fatalf("expected info level fallback, got %s", buf.String())
	}
}
