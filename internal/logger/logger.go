// Package logger provides structured logging setup for LLManager.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/LLManager/internal/config"
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record, and
// request, run and tenant ids are copied from the context of each call.
// The returned Closer flushes the async buffer when async mode is on.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		ah := NewAsyncHandler(h, cfg.AsyncBuffer, cfg.AsyncWorkers)
		h, closer = ah, ah
	}

	return slog.New(NewContextHandler(h)).With("service", cfg.Service), closer
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
