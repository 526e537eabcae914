package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterEmitsServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "mentalpalace", "info", "json")
	log.Info().Str("session_id", "s1").Msg("turn completed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["service"] != "mentalpalace" {
		t.Fatalf("service = %v, want mentalpalace", line["service"])
	}
	if line["session_id"] != "s1" {
		t.Fatalf("session_id = %v, want s1", line["session_id"])
	}
}

func TestNewWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "mentalpalace", "warn", "json")
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}
	log.Warn().Msg("kept")
	if buf.Len() == 0 {
		t.Fatalf("warn line missing")
	}
}

func TestNewWithWriterUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "mentalpalace", "loud", "json")
	log.Debug().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug line written with fallback level: %q", buf.String())
	}
	log.Info().Msg("kept")
	if buf.Len() == 0 {
		t.Fatalf("info line missing")
	}
}
