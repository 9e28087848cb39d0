package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Components receive child loggers
// via With so their log lines carry a component attribute.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
