// Package logger provides structured logging setup for the Eleanor
// decision engine.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/eleanor-project/eleanor/internal/config"
)

// New creates a *slog.Logger from the given Logging config. Output is
// JSON to stdout with a "service" attribute on every record. When async
// logging is enabled, records pass through a buffered AsyncHandler and
// the returned Closer must be called on shutdown to drain it.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		chanSize := cfg.ChanSize
		if chanSize <= 0 {
			chanSize = 4096
		}
		ah := NewAsyncHandler(handler, chanSize, 1)
		handler = ah
		closer = ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
