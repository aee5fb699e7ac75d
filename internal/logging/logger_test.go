package logging

import (
	"strings"
	"testing"
)

func TestLoggerRespectsMinimumLevel(t *testing.T) {
	output := &strings.Builder{}
	logger := NewLoggerWithOutput(LevelWarning, output)

	logger.Info("ignored", nil)
	logger.Warn("kept", nil)

	text := output.String()
	if strings.Contains(text, "ignored") {
		t.Fatalf("info entry should be filtered, got %q", text)
	}
	if !strings.Contains(text, `msg="kept"`) {
		t.Fatalf("warning entry missing, got %q", text)
	}
}

func TestLoggerWithMergesContext(t *testing.T) {
	output := &strings.Builder{}
	logger := NewLoggerWithOutput(LevelInfo, output).With(map[string]string{
		"component": "multiplexer",
	})

	logger.Info("watcher started", map[string]string{
		"key": "ns:team-a",
	})

	text := output.String()
	if !strings.Contains(text, `component="multiplexer"`) {
		t.Fatalf("base context missing, got %q", text)
	}
	if !strings.Contains(text, `key="ns:team-a"`) {
		t.Fatalf("call context missing, got %q", text)
	}
}

func TestFormatEntrySortsContextKeys(t *testing.T) {
	entry := Entry{
		Level:   LevelInfo,
		Message: "m",
		Context: map[string]string{"b": "2", "a": "1"},
	}
	text := formatEntry(entry)
	if strings.Index(text, "a=") > strings.Index(text, "b=") {
		t.Fatalf("context keys not sorted: %q", text)
	}
}

func TestParseLevel(t *testing.T) {
	if level, ok := ParseLevel(" WARN "); !ok || level != LevelWarning {
		t.Fatalf("expected warning, got %q ok=%v", level, ok)
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatal("expected parse failure")
	}
}
