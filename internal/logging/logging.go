// Package logging builds the run logger: colored console output plus a
// plain, timestamped, append-only log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileTimeFormat = "2006-01-02 15:04:05"

// Options configures New.
type Options struct {
	// File is the log file path; empty disables the file sink.
	File string
	// Console receives colored output; nil means os.Stderr.
	Console io.Writer
	Level   string
	// MaxSizeMB rotates the file once it grows past this size.
	MaxSizeMB int
}

// New returns a logger writing to the console and the log file. The returned
// closer flushes and closes the file sink.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 50
		}
		file := &lumberjack.Logger{Filename: opts.File, MaxSize: size, MaxBackups: 5}
		writers = append(writers, zerolog.ConsoleWriter{Out: file, NoColor: true, TimeFormat: fileTimeFormat})
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
