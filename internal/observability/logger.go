package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging on top of zap. Fields attached with
// WithField/WithFields are carried by every entry of the derived logger.
type Logger struct {
	zl *zap.Logger
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level   string    // debug, info, warn, error
	Format  string    // "json" or "console"
	Output  io.Writer // defaults to stderr
	Service string
	Version string
}

// NewLogger creates a new logger instance
func NewLogger(config LoggerConfig) (*Logger, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	if config.Output == nil {
		config.Output = os.Stderr
	}

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(config.Output), level)
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	if config.Service != "" {
		zl = zl.With(zap.String("service", config.Service))
	}
	if config.Version != "" {
		zl = zl.With(zap.String("version", config.Version))
	}

	return &Logger{zl: zl}, nil
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// FromZap wraps an existing zap logger
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{zl: zl}
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// ReplaceGlobals installs this logger as zap's global logger, which the
// retry and error-handling helpers log through.
func (l *Logger) ReplaceGlobals() func() {
	return zap.ReplaceGlobals(l.zl)
}

// Sync flushes buffered entries
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With(zap.Any(key, value))}
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{zl: l.zl.With(toZap(fields)...)}
}

func toZap(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.zl.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zl.Debug(fmt.Sprintf(format, args...))
}

// DebugWithFields logs a debug message with fields
func (l *Logger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.zl.Debug(msg, toZap(fields)...)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.zl.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zl.Info(fmt.Sprintf(format, args...))
}

// InfoWithFields logs an info message with fields
func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.zl.Info(msg, toZap(fields)...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.zl.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zl.Warn(fmt.Sprintf(format, args...))
}

// WarnWithFields logs a warning message with fields
func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.zl.Warn(msg, toZap(fields)...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.zl.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zl.Error(fmt.Sprintf(format, args...))
}

// ErrorWithFields logs an error message with fields
func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.zl.Error(msg, toZap(fields)...)
}

// ParseLevel converts a level name to a zap level; empty means info
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

var defaultLogger = NewNopLogger()

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger
func GetDefaultLogger() *Logger {
	return defaultLogger
}
