package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog logger from cfg.
//
// Output is stdout, stderr or file (FilePath, appended to). Format is json
// or console. Unlike zerolog's global level, the level applies to the
// returned logger only.
func NewLogger(cfg LogConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
		}
		level = l
	}

	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.FilePath == "" {
			return zerolog.Nop(), fmt.Errorf("log output file requires file_path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file '%s': %w", cfg.FilePath, err)
		}
		output = f
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log output %q", cfg.Output)
	}

	timeFormat := time.RFC3339
	switch strings.ToLower(cfg.TimeFormat) {
	case "unix":
		timeFormat = zerolog.TimeFormatUnix
	case "iso8601":
		timeFormat = "2006-01-02T15:04:05.000Z07:00"
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	if timeFormat != time.RFC3339 {
		// TimeFieldFormat is package-global in zerolog.
		zerolog.TimeFieldFormat = timeFormat
	}
	return logger, nil
}
