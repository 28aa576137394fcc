// Package zlog adapts zerolog to the framelink.Logger interface.
package zlog

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes key/value records through zerolog.
type Logger struct {
	zl zerolog.Logger
}

// New returns a Logger writing JSON records to w at the given level.
func New(w io.Writer, level string) *Logger {
	return &Logger{zl: zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()}
}

// NewConsole returns a Logger writing human-readable lines to w.
func NewConsole(w io.Writer, level string) *Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	return New(out, level)
}

// ParseLevel maps a level name to a zerolog level. Unknown names yield
// info.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) { write(l.zl.Debug(), msg, args) }

// Info logs an info-level message with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) { write(l.zl.Info(), msg, args) }

// Warn logs a warning-level message with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) { write(l.zl.Warn(), msg, args) }

// Error logs an error-level message with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) { write(l.zl.Error(), msg, args) }

// write adds slog-style alternating key/value args to e and sends it.
func write(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}

	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}

		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}

		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}

	e.Msg(msg)
}
