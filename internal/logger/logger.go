// Package logger provides structured logging for the relay CLI, backed by zap.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the logging level
type Level int

const (
	// DebugLevel logs everything
	DebugLevel Level = iota
	// InfoLevel logs info, warnings, and errors
	InfoLevel
	// ErrorLevel logs only errors
	ErrorLevel
)

// Logger wraps a zap logger with the leveled interface used across the CLI.
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

func init() {
	if l, err := NewFromEnv(); err == nil {
		globalLogger = l
	} else {
		globalLogger = New(InfoLevel)
	}
}

// New creates a console logger writing to stderr at the given level.
func New(level Level) *Logger {
	return build(level, false, zapcore.Lock(os.Stderr))
}

// NewFromEnv creates a logger configured from environment variables.
// RELAY_LOG_LEVEL sets the level (falling back to RELAY_VERBOSITY),
// RELAY_LOG_FORMAT=json switches to JSON output, RELAY_LOG_CALLER=true adds
// caller annotations, and RELAY_LOG_STACKTRACE selects the stacktrace level.
func NewFromEnv() (*Logger, error) {
	levelStr := os.Getenv("RELAY_LOG_LEVEL")
	if levelStr == "" {
		switch os.Getenv("RELAY_VERBOSITY") {
		case "debug":
			levelStr = "debug"
		case "verbose":
			levelStr = "info"
		default:
			levelStr = "info"
		}
	}

	l := build(LevelFromString(levelStr), os.Getenv("RELAY_LOG_FORMAT") == "json", zapcore.Lock(os.Stderr))

	if os.Getenv("RELAY_LOG_CALLER") == "true" {
		l.zap = l.zap.WithOptions(zap.AddCaller(), zap.AddCallerSkip(1))
		l.sugar = l.zap.Sugar()
	}

	if stacktrace := os.Getenv("RELAY_LOG_STACKTRACE"); stacktrace != "" {
		var zapLevel zapcore.Level
		switch strings.ToLower(stacktrace) {
		case "error":
			zapLevel = zap.ErrorLevel
		case "panic":
			zapLevel = zap.PanicLevel
		default:
			zapLevel = zap.FatalLevel
		}
		l.zap = l.zap.WithOptions(zap.AddStacktrace(zapLevel))
		l.sugar = l.zap.Sugar()
	}

	return l, nil
}

// NewWithWriter creates a console logger writing to the given syncer,
// mainly for tests.
func NewWithWriter(level Level, w zapcore.WriteSyncer) *Logger {
	return build(level, false, w)
}

// NewTestLogger creates a debug-level logger that discards all output.
func NewTestLogger() *Logger {
	l := zap.NewNop()
	return &Logger{zap: l, sugar: l.Sugar()}
}

func build(level Level, jsonFormat bool, w zapcore.WriteSyncer) *Logger {
	var enc zapcore.Encoder
	if jsonFormat {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, w, zapLevel(level))
	l := zap.New(core)
	return &Logger{zap: l, sugar: l.Sugar()}
}

func zapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zap.DebugLevel
	case ErrorLevel:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// WithField adds a single field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	z := l.zap.With(zap.Any(key, value))
	return &Logger{zap: z, sugar: z.Sugar()}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	z := l.zap.With(zapFields...)
	return &Logger{zap: z, sugar: z.Sugar()}
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	z := l.zap.With(zap.Error(err))
	return &Logger{zap: z, sugar: z.Sugar()}
}

// WithRun adds run context to the logger
func (l *Logger) WithRun(runID int64, workflow string) *Logger {
	z := l.zap.With(
		zap.Int64("run_id", runID),
		zap.String("workflow", workflow),
	)
	return &Logger{zap: z, sugar: z.Sugar()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) { l.zap.Debug(msg) }

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an info message
func (l *Logger) Info(msg string) { l.zap.Info(msg) }

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(msg string) { l.zap.Warn(msg) }

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(msg string) { l.zap.Error(msg) }

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Sync flushes any buffered log entries
func (l *Logger) Sync() error { return l.zap.Sync() }

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalLogger
}

// SetLogger sets the global logger instance
func SetLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// LevelFromString converts a string to a log level
func LevelFromString(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
