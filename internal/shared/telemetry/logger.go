package telemetry

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	root = newLogger(os.Stdout, os.Getenv("LOG_LEVEL"))
)

func newLogger(w io.Writer, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

// Configure rebuilds the process logger with the given writer and level.
// A nil writer keeps stdout.
func Configure(w io.Writer, level string) {
	if w == nil {
		w = os.Stdout
	}
	l := newLogger(w, level)
	mu.Lock()
	root = l
	mu.Unlock()
}

// SetOutput redirects log lines, mostly for tests. It returns a restore func.
func SetOutput(w io.Writer) func() {
	mu.Lock()
	prev := root
	root = newLogger(w, "debug")
	mu.Unlock()
	return func() {
		mu.Lock()
		root = prev
		mu.Unlock()
	}
}

// Logger exposes the underlying zerolog logger for callers that need events directly.
func Logger() *zerolog.Logger {
	mu.RLock()
	l := root
	mu.RUnlock()
	return &l
}

// Debug writes a debug-level log line with the given fields.
func Debug(msg string, fields map[string]any) {
	write(zerolog.DebugLevel, msg, fields)
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	write(zerolog.InfoLevel, msg, fields)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	write(zerolog.WarnLevel, msg, fields)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	write(zerolog.ErrorLevel, msg, fields)
}

func write(level zerolog.Level, msg string, fields map[string]any) {
	l := Logger()
	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			ev = ev.AnErr(k, err)
			continue
		}
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
