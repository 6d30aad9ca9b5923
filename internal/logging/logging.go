package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Configure installs a text handler as the default slog logger. The level
// comes from LOG_LEVEL (DEBUG, INFO, WARN, ERROR) and defaults to INFO.
func Configure() {
	ConfigureWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
}

func ConfigureWriter(w io.Writer, lvl string) {
	level.Set(ParseLevel(lvl))
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func ParseLevel(lvl string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(lvl)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func SetLevel(l slog.Level) {
	level.Set(l)
}
