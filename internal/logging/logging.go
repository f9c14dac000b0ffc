package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs the process-wide logger with a service attribute on every
// record. format selects the handler: "json" (the default) or "text".
func Init(service, format string) *slog.Logger {
	format = strings.ToLower(strings.TrimSpace(format))

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, nil)
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	if format != "" && format != "json" && format != "text" {
		logger.Warn("unknown log format, using json", "format", format)
	}
	return logger
}
