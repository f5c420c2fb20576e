// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config selects the level and output format.
type Config struct {
	Level  string
	Format string // console or json
	Output io.Writer
}

// New returns a logger configured from cfg. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var w io.Writer = out
	if !strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}

	return zerolog.New(w).
		Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().
		Timestamp().
		Str("service", "ashx").
		Logger()
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger { return zerolog.Nop() }

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// Printf adapts a zerolog logger to the Printf-style writers that gorm and
// the HTTP recovery handler accept.
type Printf struct {
	L     zerolog.Logger
	Level zerolog.Level
}

func (p Printf) Printf(format string, args ...interface{}) {
	p.L.WithLevel(p.Level).Msgf(strings.TrimSpace(format), args...)
}

func (p Printf) Println(args ...interface{}) {
	p.L.WithLevel(p.Level).Msg(strings.TrimSpace(fmt.Sprintln(args...)))
}

// Cron adapts a zerolog logger to cron.Logger. Scheduler chatter goes to
// debug and job errors, recovered panics included, go to error.
type Cron struct {
	L zerolog.Logger
}

func (c Cron) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debug().Fields(keysAndValues).Msg(msg)
}

func (c Cron) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Since is a small helper for duration fields.
func Since(t time.Time) time.Duration {
	return time.Since(t).Round(time.Millisecond)
}
