// Package util holds small process-wide helpers.
package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger writes JSON lines to stdout at the given level (info when unparsable).
func NewLogger(level string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(parseLevel(level))
}

// NewConsoleLogger writes human-readable lines to w, leaving stdout free for command output.
func NewConsoleLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(cw).With().Timestamp().Logger().Level(parseLevel(level))
}

// NewLoggerFor picks the console or JSON logger by format name.
func NewLoggerFor(format, level string) zerolog.Logger {
	if strings.EqualFold(format, "json") {
		return NewLogger(level)
	}
	return NewConsoleLogger(level, os.Stderr)
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return lvl
}
