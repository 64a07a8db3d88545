// Package logging configures the process-wide structured logger and hands out
// prefixed component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	mu     sync.RWMutex
	root   = newLogger(os.Stderr, log.InfoLevel, log.TextFormatter)
	output io.Writer = os.Stderr
)

// Configure rebuilds the root logger. level is one of debug, info, warn,
// error; format is text, json or logfmt.
func Configure(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	var formatter log.Formatter
	switch format {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	mu.Lock()
	defer mu.Unlock()
	root = newLogger(output, lvl, formatter)
	return nil
}

// SetOutput redirects the root logger, keeping its level and formatter.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	root.SetOutput(w)
}

// Root returns the process logger.
func Root() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// For returns a logger whose lines are prefixed with component.
func For(component string) *log.Logger {
	return Root().WithPrefix(component)
}

func newLogger(w io.Writer, level log.Level, formatter log.Formatter) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
	})
	l.SetStyles(styles())
	return l
}

func styles() *log.Styles {
	s := log.DefaultStyles()
	s.Keys["event"] = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	s.Values["event"] = lipgloss.NewStyle().Bold(true)
	s.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	s.Values["err"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	s.Keys["session"] = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	return s
}
