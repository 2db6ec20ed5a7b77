package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a JSON logger, or a human-readable one in dev.
func New(env string) zerolog.Logger {
	return NewWithWriter(env, os.Stdout)
}

func NewWithWriter(env string, w io.Writer) zerolog.Logger {
	if env == "dev" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}
