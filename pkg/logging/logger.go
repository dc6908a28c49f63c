// Package logging configures the zerolog logger shared by all SDK components.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
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

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// envConfig is the environment form of Config.
type envConfig struct {
	Level  string `env:"GRAPHCORE_LOG_LEVEL,default=info"`
	Pretty bool   `env:"GRAPHCORE_LOG_PRETTY,default=false,strict"`
}

// ConfigFromEnv returns DefaultConfig overridden by GRAPHCORE_LOG_LEVEL and
// GRAPHCORE_LOG_PRETTY.
func ConfigFromEnv() (Config, error) {
	var env envConfig
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode logging environment: %w", err)
	}

	cfg := DefaultConfig()
	if env.Level != "" {
		cfg.Level = LogLevel(strings.ToLower(env.Level))
	}
	cfg.Pretty = env.Pretty
	return cfg, nil
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
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
// Debug: Detailed information for debugging
//   - Pipeline stages (query rewrites, redirects followed, chaos injections)
//   - Batch sends, page fetches, upload slices
//   - Internal state changes (iterator states, session refreshes)
//
// Info: Normal operation events
//   - Completed uploads
//   - Delta rounds reached
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and throttling
//   - Claims challenges
//   - Store errors (delta link or upload session not persisted)
//   - Error statuses returned to the caller
//
// Error: Error conditions requiring attention
//   - Failed requests (after retries)
//   - Stopped batch executions
//   - Configuration errors
//
// Context Fields:
//   - component: Logger owner (graph-client, retry, batch-executor, upload-task, ...)
//   - method, url: Request line (url is redacted)
//   - status: HTTP status code
//   - error_class: Error classification (client, server, throttled, redirect, auth, canceled, network)
//   - attempt, delay: Retry state
//   - range: Content-Range of an upload slice
