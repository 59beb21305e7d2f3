// Package logger provides a structured logging interface with zerolog-backed
// implementations: a plain structured logger, a console logger for the
// interactive binaries, a file-backed logger for the daemon, and a no-op
// logger for tests.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Logger is the logging interface every component of the service accepts.
// Implementations write entries at the usual levels with structured fields
// and may be derived with With for component-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs to include in the log entry
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs to include in the log entry
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs to include in the log entry
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	//
	// Parameters:
	//   - msg: The log message
	//   - fields: Optional key-value pairs to include in the log entry
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger carrying the specified fields
	With(fields ...Field) Logger

	// Close releases resources held by the logger (e.g. file handles).
	// It is safe to call multiple times.
	//
	// Returns:
	//   - An error if closing resources fails
	Close() error
}

// zerologLogger is the zerolog-based implementation of Logger.
type zerologLogger struct {
	logger   zerolog.Logger
	file     *os.File
	ownsFile bool
}

// NewZerologLogger builds a Logger that wraps the given zerolog.Logger,
// adding a service name and timestamp to all entries and filtering by level.
//
// Parameters:
//   - l: The zerolog.Logger to wrap
//   - serviceName: Name of the service, added as a field to every entry
//   - level: Minimum level to log (e.g. zerolog.InfoLevel)
//
// Returns:
//   - A Logger that writes through the given zerolog instance
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewConsoleLogger creates a Logger that writes human-readable entries to
// stdout. Intended for the producer/consumer/launcher binaries, which report
// per-attempt outcomes to a person rather than a log pipeline.
//
// Parameters:
//   - serviceName: Name of the service, added as a field to every entry
//   - level: Minimum level to log
//
// Returns:
//   - A console Logger
func NewConsoleLogger(serviceName string, level zerolog.Level) Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	return NewZerologLogger(zerolog.New(writer), serviceName, level)
}

// NewZerologFileLogger creates a Logger that writes JSON entries to both
// stdout and {serviceName}.log inside logDir. Panics if the directory or the
// log file cannot be created.
//
// Parameters:
//   - serviceName: Name of the service, used in entries and the file name
//   - logDir: Directory for the log file; created if it does not exist
//   - level: Minimum level to log
//
// Returns:
//   - A Logger that writes to stdout and the service log file
func NewZerologFileLogger(serviceName string, logDir string, level zerolog.Level) Logger {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		panic(fmt.Errorf("failed to create log directory: %w", err))
	}

	filename := filepath.Join(logDir, serviceName+".log")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		panic(fmt.Errorf("failed to open log file %s: %w", filename, err))
	}

	multi := io.MultiWriter(os.Stdout, file)
	return &zerologLogger{
		logger:   zerolog.New(multi).With().Str("service", serviceName).Timestamp().Logger().Level(level),
		file:     file,
		ownsFile: true,
	}
}

// NewNopLogger returns a Logger that discards everything. Used in tests.
//
// Returns:
//   - A Logger whose methods are no-ops
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
		file:   z.file,
	}
}

// Close implements Logger. Only the logger that opened the file closes it;
// derived loggers share the handle without owning it.
func (z *zerologLogger) Close() error {
	if z.file != nil && z.ownsFile {
		err := z.file.Close()
		z.file = nil
		return err
	}

	return nil
}

// toMap converts a slice of Field into a map for zerolog.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
