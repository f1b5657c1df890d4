// Package logging builds the slog.Logger used by gitgrab.
//
// Console output goes to Options.Output (stderr by default) as text or JSON.
// When Options.File is set, records are also appended to that file as JSON.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error; default info
	Format string // text or json; default text
	File   string
	Output io.Writer
}

// New returns a logger for opts and a function that releases the log file,
// if one was opened. The close function is never nil.
func New(opts Options) (*slog.Logger, func() error, error) {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var console slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		console = slog.NewJSONHandler(opts.Output, hopts)
	case "", "text", "console":
		console = slog.NewTextHandler(opts.Output, hopts)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	if opts.File == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
	}

	logger := slog.New(slogmulti.Fanout(
		console,
		slog.NewJSONHandler(f, hopts),
	))
	return logger, f.Close, nil
}

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
