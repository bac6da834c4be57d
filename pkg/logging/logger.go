// Package logging configures the zerolog global logger used by every
// mapping component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs poll ticks, page fetches and cache lookups.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs job and chunk milestones.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries, cache errors and dropped fields.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed chunks only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration. Logs go to stderr so
// results written to stdout stay clean.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug:
//   - Status poll ticks (job_id, status)
//   - Page fetches (format, page, fetched, total)
//   - Cache lookups (key, hit)
//
// Info:
//   - Job submitted / finished (job_id, ids)
//   - Chunk completed (chunk, unmatched)
//   - Result written (target, bytes)
//
// Warn:
//   - Retry attempts (attempt, error_class, backoff)
//   - Server-requested pauses (Retry-After)
//   - Cache errors, mapping continues without cache
//   - Fields dropped for a target without field support
//
// Error:
//   - Chunk failed after retries
//   - Job reported ERROR
//
// Context Fields:
//   - component: emitting package (idmap-client, job-manager, fetcher, mapper, ...)
//   - job_id: service job identifier
//   - chunk: zero-based chunk index
//   - endpoint: collapsed request path
//   - error_class: client, server, rate_limit, network
//   - format: tsv, json, xml, xlsx
