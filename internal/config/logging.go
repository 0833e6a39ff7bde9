package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// NewLogger builds the process logger. The returned close function releases
// the log file when Output names one and is a no-op otherwise.
func NewLogger(cfg LoggingConfig) (*slog.Logger, func() error, error) {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	closeFn := func() error { return nil }
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.Output, err)
		}
		output = file
		closeFn = file.Close
	}

	return slog.New(newHandler(output, cfg.Format, isTerminal(output), opts)), closeFn, nil
}

func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newHandler picks JSON for "json", text for "text", and for "auto" text on
// a terminal and JSON otherwise.
func newHandler(w io.Writer, format string, terminal bool, opts *slog.HandlerOptions) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "auto":
		if !terminal {
			return slog.NewJSONHandler(w, opts)
		}
	}
	return slog.NewTextHandler(w, opts)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
