package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/arbscout/arbscout/internal/pkg/config"
)

// Setup builds the process-wide logger from config and installs it as the
// slog default. The service name is attached to every record.
func Setup(cfg *config.LoggingConfig, serviceName string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}
