// Package logging provides the structured logger used by the graph engine,
// the facade, and the HTTP server, adapted from the workflow engine's own
// tint/isatty-based logger.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Format selects the handler used by New.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New returns a logger for the given format. FormatText writes colorized
// output when stdout is a terminal and falls back to plain text otherwise;
// FormatJSON always writes newline-delimited JSON.
func New(format Format) *slog.Logger {
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	}))
}
