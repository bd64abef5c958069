package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "tool", "get-route")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["msg"] != "shown" || entry["tool"] != "get-route" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestTextAndPrettyFormats(t *testing.T) {
	var text bytes.Buffer
	NewWithWriter(&text, "info", "text").Info("hello", "k", "v")
	if !strings.Contains(text.String(), "msg=hello") || !strings.Contains(text.String(), "k=v") {
		t.Fatalf("unexpected text output %q", text.String())
	}

	var pretty bytes.Buffer
	logger := NewWithWriter(&pretty, "debug", "pretty")
	logger.Debug("tool_call", "tool", "get-athlete-stats")
	if !strings.Contains(pretty.String(), "tool_call") || !strings.Contains(pretty.String(), "get-athlete-stats") {
		t.Fatalf("unexpected pretty output %q", pretty.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
