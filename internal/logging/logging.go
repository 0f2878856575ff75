// Package logging builds the zerolog logger used by the tocsin binaries.
//
// Console output is for humans (short timestamp, key=value fields). JSON output
// keeps fields structured for log shippers.
package logging

import (
	"io"
	"strings"

	"github.com/dyluth/tocsin/internal/config"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05.000"

// ParseLevel maps a config level to zerolog, falling back to def for empty or
// unknown values.
func ParseLevel(level string, def zerolog.Level) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}

// New returns a logger writing to w according to cfg.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().
		Timestamp().
		Logger()
}
