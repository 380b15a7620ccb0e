package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEV":     zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"prod":    zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	} {
		if got := ParseLevel(name); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestInitWriterFiltersByLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	InitWriter(&buf, "warn", false)

	log.Info().Msg("hidden")
	log.Warn().Str("room", "r1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"room":"r1"`) || !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %s", out)
	}
}
