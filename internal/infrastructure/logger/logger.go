// Package logger wraps github.com/rs/zerolog behind a small facade: a
// package-level Setup() plus per-component constructors, rather than a bare
// *zerolog.Logger threaded everywhere by hand.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the facade type callers hold. It is a thin alias over
// zerolog.Logger so component packages never import zerolog directly.
type Logger = zerolog.Logger

var (
	baseOnce sync.Once
	base     zerolog.Logger
)

// Setup configures the process-wide base logger. level is one of
// debug/info/warn/error; format is "json" or "console". Call once at
// startup, then derive component loggers from Base()/Component().
func Setup(level, format string) Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stdout
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
	base = l
	baseOnce.Do(func() {})
	return l
}

// Base returns the process-wide base logger configured by Setup. If Setup
// was never called it falls back to an info-level JSON logger on stdout, so
// packages and tests that construct a component logger directly still work.
func Base() Logger {
	baseOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		base = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	})
	return base
}

// Component returns a logger tagged with component=name, the unit every
// application-layer package (ingest, exposure, cascade, propagation, zone,
// surprise, resolution) logs through.
func Component(name string) Logger {
	return Base().With().Str("component", name).Logger()
}

// WithRequestID returns l tagged with request_id=id, so every log line
// emitted while handling one request can be correlated.
func WithRequestID(l Logger, id string) Logger {
	return l.With().Str("request_id", id).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
