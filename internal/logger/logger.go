// Package logger provides a configured zerolog instance.
package logger

import (
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"os"
)

const serviceName = "dispatch-scheduler"

// NewLogger creates a new configured instance of zerolog.Logger.
// It reads the log level from the config and adds default fields like service name and caller.
func NewLogger(cfg *config.Config) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil || cfg.Logger.Level == "" {
		// Default to info level if config is invalid or missing
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(newWriter(cfg.Logger)).With().
		Timestamp().
		Str("service", serviceName).
		Caller().
		Logger().
		Level(level)

	return &logger, nil
}

// newWriter picks the sink and the encoding. Console output is meant for local
// development; json is what log shippers expect.
func newWriter(cfg config.LoggerConfig) io.Writer {
	var out io.Writer = os.Stderr
	if cfg.Output == "file" {
		out = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   true,
		}
	}

	if cfg.Format == "json" {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, NoColor: cfg.Output == "file"}
}
