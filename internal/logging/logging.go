package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// Options configures the log sink.
type Options struct {
	Level string // debug, info, warn or error; defaults to info
	Quiet bool   // Suppress info output on the console
	File  string // Optional append-only log file
}

// Setup builds a logger writing to the console and, when configured, a log
// file. The returned closer releases the file. logrus serializes writes, so
// the logger is safe for concurrent use by hashing workers.
func Setup(opts Options) (*log.Logger, io.Closer, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	if opts.Quiet && level > log.WarnLevel {
		level = log.WarnLevel
	}

	logger := log.New()
	logger.SetLevel(level)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	var closer io.Closer = nopCloser{}
	var out io.Writer = os.Stdout
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}
	logger.SetOutput(out)

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
