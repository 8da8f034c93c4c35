package log

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger    atomic.Pointer[zap.SugaredLogger]
	level     = zap.NewAtomicLevel()
	verbosity atomic.Int32
)

func init() {
	// Initialize with default logger (warnings only) before Init is called
	level.SetLevel(zapcore.WarnLevel)
	verbosity.Store(VerbosityWarn)
	logger.Store(newLogger(HandlerOptions{
		Level:  level,
		Format: "text",
		Output: os.Stderr,
	}))
}

// Init initializes the global logger (call once at startup).
func Init(v int, format string) {
	verbosity.Store(int32(v))
	level.SetLevel(VerbosityToLevel(v))

	logger.Store(newLogger(HandlerOptions{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	}))
}

// SetVerbosity changes verbosity at runtime.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
	level.SetLevel(VerbosityToLevel(v))
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	return int(verbosity.Load())
}

// Logger returns the current logger instance.
func Logger() *zap.SugaredLogger {
	return logger.Load()
}

// Error logs at error level (v=0).
func Error(msg string, args ...any) {
	logger.Load().Errorw(msg, args...)
}

// Warn logs at warn level (v=1).
func Warn(msg string, args ...any) {
	logger.Load().Warnw(msg, args...)
}

// Info logs at info level (v=2).
func Info(msg string, args ...any) {
	logger.Load().Infow(msg, args...)
}

// Debug logs at debug level (v=3).
func Debug(msg string, args ...any) {
	logger.Load().Debugw(msg, args...)
}

// Trace logs at trace level (v=4).
func Trace(msg string, args ...any) {
	logger.Load().Logw(LevelTrace, msg, args...)
}

// V returns a logger that only logs if verbosity >= level.
// Usage: log.V(3).Infow("detailed", "key", value)
func V(v int) *zap.SugaredLogger {
	if int(verbosity.Load()) >= v {
		return logger.Load()
	}
	return discard
}

// With returns a logger with additional context.
func With(args ...any) *zap.SugaredLogger {
	return logger.Load().With(args...)
}

// Component returns a logger tagged with component name.
func Component(name string) *zap.SugaredLogger {
	return logger.Load().With("component", name)
}
