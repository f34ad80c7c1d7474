package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   Debug,
		"INFO":    Info,
		"warn":    Warning,
		"warning": Warning,
		"error":   Error,
		" fatal ": Critical,
		"":        Warning,
		"verbose": Warning,
	}

	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test", Info)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("visible", "key", "value", "dangling")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message logged at info level: %q", out)
	}
	if !strings.Contains(out, "[test] ") || !strings.Contains(out, "[INFO] visible key=value") {
		t.Errorf("unexpected log output: %q", out)
	}
	if strings.Contains(out, "dangling") {
		t.Errorf("unpaired key logged: %q", out)
	}
}
