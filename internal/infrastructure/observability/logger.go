package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds the JSON logger; unknown levels fall back to info.
func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	logLevel := parseLogLevel(level)

	return zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithFields returns a child logger carrying fields on every entry.
func WithFields(logger zerolog.Logger, fields map[string]any) zerolog.Logger {
	if len(fields) == 0 {
		return logger
	}
	return logger.With().Fields(fields).Logger()
}
