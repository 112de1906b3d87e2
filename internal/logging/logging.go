// Package logging builds the process logger: one slog handler writing to
// stdout and to a daily file under the log directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options selects where and how to log. Dir empty disables the file.
type Options struct {
	Level  string
	Format string
	Dir    string
	Stdout io.Writer
	Now    func() time.Time
}

// Logger is the process logger plus the file it mirrors to.
type Logger struct {
	*slog.Logger
	// Path is the daily log file, empty when file logging is off.
	Path string
	file *os.File
}

// FileName returns the daily log file name for t.
func FileName(t time.Time) string {
	return "audit_" + t.Format("20060102") + ".log"
}

// New opens (appending) the daily log file and returns a logger writing to it
// and to stdout.
func New(opts Options) (*Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Logger{}
	w := opts.Stdout
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		l.Path = filepath.Join(opts.Dir, FileName(opts.Now()))
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		w = io.MultiWriter(opts.Stdout, f)
	}

	ho := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		h = slog.NewJSONHandler(w, ho)
	default:
		h = slog.NewTextHandler(w, ho)
	}
	l.Logger = slog.New(h)
	return l, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
