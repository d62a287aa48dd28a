// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w. format is "console" or "json"; an
// unknown level falls back to info.
func New(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Int("pid", os.Getpid()).Logger()
}

// Session returns a child logger tagged with a shortened session id, the
// same 8-character prefix the log lines have always used.
func Session(log zerolog.Logger, id string) zerolog.Logger {
	if len(id) > 8 {
		id = id[:8]
	}
	return log.With().Str("session", id).Logger()
}
