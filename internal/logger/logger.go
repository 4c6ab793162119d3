package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup returns the stderr logger for the CLI and installs it as the global
// logger used through zerolog/log.
func Setup(dev bool) zerolog.Logger {
	logger := New(os.Stderr, dev)
	log.Logger = logger
	return logger
}

// New writes JSON lines to w, or console output with debug level when dev is
// set.
func New(w io.Writer, dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	if !dev {
		return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
	}

	console := zerolog.ConsoleWriter{Out: w, FormatTimestamp: func(i any) string {
		return time.Now().Format(time.RFC3339)
	}}
	return zerolog.New(console).Level(level).With().Timestamp().Caller().Stack().Logger()
}
