// Package log provides structured logging for mxdb environments, wrapping
// zerolog the same way tree_db/internal/logger does in the reference pack:
// a small struct around a configured zerolog.Logger, with a Config for
// level/pretty-printing/output selection.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a configured zerolog.Logger with mxdb-specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config controls how a Logger is constructed.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Pretty enables a human-readable console writer instead of JSON.
	Pretty bool
	// Output is where log lines are written. Defaults to os.Stderr.
	Output io.Writer
	// WithCaller adds the calling file:line to every event.
	WithCaller bool
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zlog := zerolog.New(output).Level(level).With().Timestamp().Str("component", "mxdb").Logger()
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}
	return &Logger{zlog: zlog}
}

// Nop returns a Logger that discards everything, used as the default on a
// freshly created Env so call sites never need to nil-check.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog.Logger for callers that want the
// full event builder API directly.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

// Debug starts a debug-level event.
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Info starts an info-level event.
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Warn starts a warn-level event.
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Error starts an error-level event.
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }
