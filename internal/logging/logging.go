// Package logging configures the global zerolog logger from the environment.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Settings is the subset of configuration the logger needs.
type Settings interface {
	GetEnv() string
	GetLogLevel() string
	GetFileLoggingEnabled() bool
	GetLogFilePath() string
}

// Setup installs the global logger. The returned closer releases the log file, if any.
func Setup(s Settings) (io.Closer, error) {
	level, err := zerolog.ParseLevel(s.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if s.GetEnv() == "DEV" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	var closer io.Closer = nopCloser{}
	if s.GetFileLoggingEnabled() {
		path := s.GetLogFilePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	log.Info().Str("level", level.String()).Bool("file_logging", s.GetFileLoggingEnabled()).Msg("logger configured")
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
