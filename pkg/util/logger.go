package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Levels accepted by ParseLoggerConfig, by name.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = map[string]slog.Level{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// LoggerConfig describes the process logger.
type LoggerConfig struct {
	Level  slog.Level
	Format LogFormat
	Output io.Writer
}

// DefaultLoggerConfig writes warnings and errors as text to stderr. Stdout
// carries command output and the MCP stdio transport, so logs never go
// there.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{Level: LevelWarn, Format: FormatText, Output: os.Stderr}
}

// ParseLoggerConfig applies the level and format names read from flags,
// environment or config file to the defaults. Empty names keep the default.
func ParseLoggerConfig(level, format string, output io.Writer) (LoggerConfig, error) {
	config := DefaultLoggerConfig()
	if output != nil {
		config.Output = output
	}

	if level != "" {
		l, ok := levelNames[strings.ToLower(level)]
		if !ok {
			return config, fmt.Errorf("unknown log level %q", level)
		}
		config.Level = l
	}

	switch f := LogFormat(strings.ToLower(format)); f {
	case "":
	case FormatJSON, FormatText:
		config.Format = f
	default:
		return config, fmt.Errorf("unknown log format %q", format)
	}
	return config, nil
}

// NewLogger builds a slog.Logger from config. An unset format logs JSON.
func NewLogger(config LoggerConfig) *slog.Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: config.Level}
	if config.Format == FormatText {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
