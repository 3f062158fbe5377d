// ABOUTME: Structured logger construction on top of charmbracelet/log
// ABOUTME: Maps CLI verbosity flags and config levels onto component loggers
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New creates a logger writing to w at the named level (debug, info, warn, error)
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "anonymizer",
	})
	logger.SetLevel(ParseLevel(level))
	return logger
}

// ParseLevel parses a level name, falling back to info
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// LevelFor resolves the effective level from the configured level and CLI flags
func LevelFor(configured string, verbose, quiet bool) string {
	switch {
	case verbose:
		return "debug"
	case quiet:
		return "error"
	case configured == "":
		return "info"
	default:
		return configured
	}
}

// Discard returns a logger that drops everything, for tests and library defaults
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// ForComponent tags every entry with the component name
func ForComponent(base *log.Logger, component string) *log.Logger {
	if base == nil {
		base = Discard()
	}
	return base.With("component", component)
}
