package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "production", "")
	if l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level, got %s", l.GetLevel())
	}

	l.Debug().Msg("hidden")
	l.Info().Str("k", "v").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["message"] != "shown" || entry["k"] != "v" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected a timestamp")
	}
}

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	if l := NewWithWriter(&buf, "development", ""); l.GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected debug level in development, got %s", l.GetLevel())
	}
	if l := NewWithWriter(&buf, "production", "warn"); l.GetLevel() != zerolog.WarnLevel {
		t.Errorf("Expected warn level, got %s", l.GetLevel())
	}
	if l := NewWithWriter(&buf, "production", "nonsense"); l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected invalid level to keep info, got %s", l.GetLevel())
	}
}
