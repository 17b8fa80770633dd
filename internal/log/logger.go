package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func New(environment string) zerolog.Logger {
	level := "debug"
	if environment == "production" {
		level = "info"
	}
	return NewWithLevel(environment, level)
}

// NewWithLevel is used by the worker, which takes its level from config.
func NewWithLevel(environment string, level string) zerolog.Logger {
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}
	if environment == "production" {
		output = os.Stdout
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(level))

	return logger
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
