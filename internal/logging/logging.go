package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps LOG_LEVEL style names to zerolog levels. Unknown names
// fall back to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Init installs the global logger. pretty selects the console writer;
// otherwise logs are JSON lines.
func Init(level string, pretty bool) zerolog.Logger {
	return InitWriter(os.Stderr, level, pretty)
}

func InitWriter(out io.Writer, level string, pretty bool) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	l := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = l
	return l
}
