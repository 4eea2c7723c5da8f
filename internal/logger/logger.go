package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu           sync.RWMutex
	debugEnabled = false
	sugar        = zap.NewNop().Sugar()
)

// Init initializes the process logger. Debug mode uses the console encoder
// and enables Debug output; otherwise JSON at info level is written.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Set(l, debug)
	if debug {
		Debug("Debug logging enabled")
	}
	return nil
}

// InitQuiet initializes a JSON logger that writes errors only, for callers
// that own the terminal.
func InitQuiet() error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	Set(l, false)
	return nil
}

// Set replaces the underlying zap logger. Tests use it with zaptest/observer.
func Set(l *zap.Logger, debug bool) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.Sugar()
	debugEnabled = debug
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug logs a debug message if debug mode is enabled
func Debug(format string, v ...interface{}) {
	mu.RLock()
	on := debugEnabled
	mu.RUnlock()
	if on {
		current().Debugf(format, v...)
	}
}

// Info logs an info message
func Info(format string, v ...interface{}) { current().Infof(format, v...) }

// Warn logs a warning message
func Warn(format string, v ...interface{}) { current().Warnf(format, v...) }

// Error logs an error message
func Error(format string, v ...interface{}) { current().Errorf(format, v...) }

// With returns a structured logger carrying the given key/value pairs.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return current().With(keysAndValues...)
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugEnabled
}

// Sync flushes buffered log entries.
func Sync() { _ = current().Sync() }
