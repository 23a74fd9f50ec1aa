package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	logger := NewLogger()
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter")
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger := NewLogger()
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %v", logger.GetLevel())
	}
}

func TestNewLoggerWithService(t *testing.T) {
	logger := NewLoggerWithService("dispatcher")
	if logger == nil {
		t.Fatal("expected logger instance")
	}

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Info("started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["service"] != "dispatcher" {
		t.Fatalf("expected service field on every entry, got %v", entry)
	}
}
