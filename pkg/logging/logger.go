// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
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

// FileName is the name of the log file inside FileConfig.Dir.
const FileName = "marketwatch.log"

// FileConfig enables a size-rotated log file.
type FileConfig struct {
	// Dir is the log directory. Empty disables file output.
	Dir string

	// MaxSize is the size in megabytes at which the file is rotated.
	MaxSize int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// Shell keeps writing error and above to Output while logging to the
	// file.
	Shell bool
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File optionally redirects logs to a rolling file.
	File FileConfig
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. The returned closer releases
// the log file, if any.
func Setup(cfg Config) (zerolog.Logger, io.Closer) {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	// Configure output
	var output io.Writer = out
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: out}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File.Dir != "" {
		file := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Dir, FileName),
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
		}
		closer = file

		if cfg.File.Shell {
			output = zerolog.MultiLevelWriter(file, errorsOnly{w: output})
		} else {
			output = file
		}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger, closer
}

// errorsOnly passes error and above to w.
type errorsOnly struct {
	w io.Writer
}

func (e errorsOnly) Write(p []byte) (int, error) {
	return len(p), nil
}

func (e errorsOnly) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel || level == zerolog.NoLevel {
		return len(p), nil
	}
	return e.w.Write(p)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

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
//   - Page walks (page number, ETag, changed/unchanged)
//   - Per-location and per-entity skips
//   - Regional API bookkeeping
//
// Info: Normal operation events
//   - Job start/finish with run_id
//   - Task progress ("Fetching market orders", "Adding new orders")
//   - Pool drain stats
//   - Startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Skipped entities after terminal failures
//   - Error limit throttling
//   - Missing bearer token
//
// Error: Error conditions requiring attention
//   - Failed tasks (after retries)
//   - Task panics
//   - Token refresh failures
//   - Store failures
//
// Context Fields:
//   - component: pool, watcher, esi, store, auth, ratelimit
//   - worker: Worker00, Worker01, ...
//   - job, run_id: watcher job runs
//   - region_id, type_id, location_id: ingestion targets
//   - category, page: ESI resource class and page number
//   - status_code, error_class: failed requests
//   - errors_remaining: current ESI error limit
