// Package telemetry provides logging setup and Prometheus metrics for the PAK.sh web console.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// parseLevel maps a config level string to a slog.Level. Unknown or empty
// strings fall back to info.
func parseLevel(level string) slog.Level {
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

// newHandler builds the slog handler for the given format and level strings.
// "json" selects the JSON handler; anything else gets the text handler. Source
// locations are attached only at debug level.
func newHandler(w io.Writer, format, level string) slog.Handler {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger configures the global slog default logger from the format and level
// strings resolved by the configuration layer.
//
// The configured logger is installed as the default so all slog.Info/Warn/Error calls
// elsewhere in the application automatically use it without needing to carry a
// *slog.Logger in context.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(newHandler(os.Stdout, format, level)))
	slog.Info("logger initialised", "format", format, "level", parseLevel(level).String())
}
