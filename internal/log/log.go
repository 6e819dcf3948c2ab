package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	logger    atomic.Pointer[slog.Logger]
	level     *slog.LevelVar
	verbosity atomic.Int32
)

func init() {
	// Warnings only until Init is called. Instrumented programs that never
	// call Init still see hashing and persistence diagnostics.
	level = new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	verbosity.Store(VerbosityWarn)
	logger.Store(slog.New(NewHandler(HandlerOptions{
		Level:  level,
		Format: "text",
		Output: os.Stderr,
		PID:    os.Getpid(),
	})))
}

// Init initializes the global logger (call once at startup).
func Init(v int, format string) {
	InitWriter(v, format, os.Stderr)
}

// InitWriter is Init with an explicit destination.
func InitWriter(v int, format string, w io.Writer) {
	verbosity.Store(int32(v))
	level.Set(VerbosityToLevel(v))

	newLogger := slog.New(NewHandler(HandlerOptions{
		Level:  level,
		Format: format,
		Output: w,
		PID:    os.Getpid(),
	}))
	logger.Store(newLogger)
}

// SetVerbosity changes verbosity at runtime.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
	level.Set(VerbosityToLevel(v))
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	return int(verbosity.Load())
}

// Logger returns the current logger instance.
func Logger() *slog.Logger {
	return logger.Load()
}

// Error logs at error level (v=0).
func Error(msg string, args ...any) {
	logger.Load().Error(msg, args...)
}

// Warn logs at warn level (v=1).
func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

// Info logs at info level (v=2).
func Info(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

// Debug logs at debug level (v=3).
func Debug(msg string, args ...any) {
	logger.Load().Debug(msg, args...)
}

// Trace logs at trace level (v=4).
func Trace(msg string, args ...any) {
	logger.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// Component returns a logger tagged with component name.
//
// The returned logger is bound to the logger current at call time, so
// packages should call Component per use rather than caching the result
// in a package variable.
func Component(name string) *slog.Logger {
	return logger.Load().With("component", name)
}
