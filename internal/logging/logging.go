package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level string
	JSON  bool
}

// Configure installs the default slog logger writing to stderr.
func Configure(opts Options) *slog.Logger {
	return configure(os.Stderr, opts)
}

func configure(w io.Writer, opts Options) *slog.Logger {
	cfg := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
