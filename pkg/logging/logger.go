// Package logging provides structured logging for fathom-etl.
// It wraps zerolog behind a small Logger interface, writing JSON for
// pipelines and a console format for interactive use.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every entry.
const ServiceName = "fathom-etl"

// ContextKey type for context values to avoid collisions.
type ContextKey string

// Context keys copied onto log entries by WithContext.
const (
	TraceIDKey   ContextKey = "trace_id"
	RequestIDKey ContextKey = "request_id"
	BatchIDKey   ContextKey = "batch_id"
)

// Level represents logging severity levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	case "":
		return LevelInfo, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// Config holds logger configuration.
type Config struct {
	Level Level

	// JSONFormat enables JSON output when true, console output when false.
	JSONFormat bool

	// Output defaults to os.Stderr so stdout stays free for JSONL.
	Output io.Writer
}

// DefaultConfig returns console logging at info level.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a Logger that adds fields to every entry.
	With(fields ...Field) Logger

	// WithContext returns a Logger carrying the trace, request and batch
	// identifiers stored in ctx.
	WithContext(ctx context.Context) Logger

	// Zerolog exposes the underlying logger for libraries that take one.
	Zerolog() zerolog.Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err creates a Field for an error.
func Err(err error) Field {
	return Field{Key: zerolog.ErrorFieldName, Value: err}
}

type logger struct {
	zl zerolog.Logger
}

// NewLogger creates a Logger from cfg. A nil cfg uses DefaultConfig.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).
		Level(zerologLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service_name", ServiceName).
		Logger()

	return &logger{zl: zl}
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *logger) Zerolog() zerolog.Logger { return l.zl }

func (l *logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *logger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func (l *logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &logger{zl: l.zl.With().Fields(pairs(fields)).Logger()}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	c := l.zl.With()
	for _, key := range []ContextKey{TraceIDKey, RequestIDKey, BatchIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			c = c.Str(string(key), v)
		}
	}
	return &logger{zl: c.Logger()}
}

// emit writes one entry. A nil event means the level is disabled.
func emit(e *zerolog.Event, msg string, fields []Field) {
	if e == nil {
		return
	}
	if len(fields) > 0 {
		e = e.Fields(pairs(fields))
	}
	e.Msg(msg)
}

// pairs flattens fields into the key/value slice zerolog encodes in order.
func pairs(fields []Field) []any {
	kv := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

var global Logger

// SetGlobal installs the logger commands fall back to when none is injected.
func SetGlobal(l Logger) {
	global = l
}

// MustGlobal returns the process-wide logger, creating a console logger at
// info level on first use.
func MustGlobal() Logger {
	if global == nil {
		global = NewLogger(DefaultConfig())
	}
	return global
}

type nopLogger struct{}

func (n nopLogger) Debug(string, ...Field)             {}
func (n nopLogger) Info(string, ...Field)              {}
func (n nopLogger) Warn(string, ...Field)              {}
func (n nopLogger) Error(string, ...Field)             {}
func (n nopLogger) With(...Field) Logger               { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (n nopLogger) Zerolog() zerolog.Logger            { return zerolog.Nop() }

// NewNopLogger returns a logger that discards all output.
func NewNopLogger() Logger {
	return nopLogger{}
}
