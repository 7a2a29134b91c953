// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names attached to every log line as the "component" field.
const (
	ComponentClient    = "oilpriceapi-client"
	ComponentRateLimit = "oilpriceapi-ratelimit"
	ComponentCLI       = "oilprice-cli"
)

// LogLevel is the minimum severity written by the global logger.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config selects level, format and destination of the global logger.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool

	// Output defaults to os.Stderr when nil.
	Output io.Writer
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup configures the global zerolog logger and returns it. Loggers
// created by NewLogger afterwards inherit its output and timestamp.
func Setup(cfg Config) zerolog.Logger {
	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stderr
	if cfg.Output != nil {
		w = cfg.Output
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

// ParseLevel maps a LogLevel to a zerolog.Level. "warning" is accepted as an
// alias for warn; empty or unknown values fall back to info.
func ParseLevel(level LogLevel) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(string(level)))
	if name == "warning" {
		name = string(LevelWarn)
	}
	parsed, err := zerolog.ParseLevel(name)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: the client's request hook, emitted only with Config.Debug
//   - Attempt start (method, URL without credentials, attempt index)
//   - Response status and size, normalized shape
//   - Retry decisions and waits (backoff or Retry-After)
//
// Info: Normal operation events
//   - Quota state updates (healthy)
//   - CLI startup, metrics listener
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts exhausted
//   - Quota running low
//   - Quota store errors (requests continue)
//
// Error: Error conditions requiring attention
//   - Quota exhausted
//   - CLI command failures
//
// Context Fields:
//   - component: emitting package
//   - request_id: X-Request-Id of one logical call
//   - route: endpoint path template
//   - status: HTTP status code
//   - code: error code (RATE_LIMIT_ERROR, SERVER_ERROR, ...)
//   - attempt: 0-based attempt index
//   - wait: duration slept before the next attempt
//
// The API key is never logged.
