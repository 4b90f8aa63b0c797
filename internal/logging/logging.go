// Package logging builds the pipeline's structured logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Format is text, logfmt or json. Empty means text.
	Format string
	// File, when set, receives every entry in addition to Writer.
	File string
	// Writer defaults to os.Stderr.
	Writer io.Writer
	// Caller adds the calling file:line to each entry.
	Caller bool
}

// New returns a logger with timestamps enabled. The returned close func
// releases the log file, if any, and is never nil.
func New(opt Options) (*log.Logger, func() error, error) {
	closer := func() error { return nil }

	lvl := log.InfoLevel
	if opt.Level != "" {
		l, err := log.ParseLevel(strings.ToLower(opt.Level))
		if err != nil {
			return nil, closer, fmt.Errorf("log level: %w", err)
		}
		lvl = l
	}
	f, err := formatter(opt.Format)
	if err != nil {
		return nil, closer, err
	}

	w := opt.Writer
	if w == nil {
		w = os.Stderr
	}
	if opt.File != "" {
		fh, err := os.OpenFile(opt.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closer, fmt.Errorf("log file: %w", err)
		}
		w = io.MultiWriter(w, fh)
		closer = fh.Close
	}

	l := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       f,
		ReportTimestamp: true,
		ReportCaller:    opt.Caller,
		TimeFormat:      time.DateTime,
	})
	return l, closer, nil
}

func formatter(name string) (log.Formatter, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return log.TextFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	}
	return log.TextFormatter, fmt.Errorf("unknown log format %q", name)
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
