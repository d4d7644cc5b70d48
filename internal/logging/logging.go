// Package logging provides structured JSON logging for the MathLens service.
// Records go to stdout and, when configured, to a rotating file and the
// systemd journal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the sinks a logger writes to.
type Options struct {
	Level   string
	File    string
	Journal bool
	Stdout  io.Writer
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new structured JSON logger with the specified log level.
// Supported levels: debug, info, warn, error
func NewLogger(level string) *slog.Logger {
	logger, _ := New(Options{Level: level})
	return logger
}

// New builds a logger fanning out to every configured sink. The returned
// closer releases the rotating file, if any.
func New(o Options) (*slog.Logger, io.Closer) {
	lvl := ParseLevel(o.Level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location for debug level
		AddSource: lvl == slog.LevelDebug,
	}

	out := o.Stdout
	if out == nil {
		out = os.Stdout
	}
	handlers := []slog.Handler{slog.NewJSONHandler(out, opts)}

	var closer io.Closer = nopCloser{}
	if o.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotator, opts))
		closer = rotator
	}

	if o.Journal {
		jh, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: lvl,
			ReplaceGroup: func(key string) string {
				return journalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = journalKey(a.Key)
				return a
			},
		})
		if err == nil {
			handlers = append(handlers, jh)
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer
}

// journalKey upper-cases a key and replaces anything outside [A-Z0-9] with
// an underscore, as journald field names require.
func journalKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithRequestID returns a logger with request_id attribute
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithComponent returns a logger with component attribute
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// SanitizeToken masks a token for safe logging.
// Shows first 4 and last 4 characters only.
// Returns "****" for tokens shorter than 8 characters.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// Truncate shortens long free text (questions, model output) for log lines.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
