// Package logging builds the zerolog logger the daemon and its components
// share. Components derive child loggers with a "component" field rather
// than keeping their own global state.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls log level, output format, and the optional debug file sink.
type Config struct {
	Level  string `mapstructure:"level"`  // trace..error, default "info"
	Format string `mapstructure:"format"` // "console" or "json", default "console"

	// File, when set, mirrors every entry as NDJSON into a size-capped
	// rolling file in addition to the main output.
	File        string `mapstructure:"file"`
	FileMaxSize int64  `mapstructure:"file_max_size"` // bytes, default 10 MiB
}

// New constructs the root logger from cfg. The returned closer releases the
// file sink, if one was opened; it is safe to call on the nil-sink case.
func New(cfg Config, service string) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if strings.ToLower(cfg.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	closer := io.Closer(nopCloser{})
	if cfg.File != "" {
		maxSize := cfg.FileMaxSize
		if maxSize <= 0 {
			maxSize = 10 * 1024 * 1024
		}
		rw, err := newRollingWriter(cfg.File, maxSize)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("logging: open file sink: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, rw)
		closer = rw
	}

	logger := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
	return logger, closer, nil
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
