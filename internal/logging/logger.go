package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Standard log levels
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// ParseLogLevel parses a level name, ignoring case.
func ParseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// ZapLogger implements the Logger interface on top of zap.
type ZapLogger struct {
	logger  *zap.Logger
	closers []io.Closer
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *ZapLogger {
	return NewZapLogger(zap.NewNop())
}

// Debug logs a debug message with optional fields
func (l *ZapLogger) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, toZapFields(fields)...)
}

// Info logs an info message with optional fields
func (l *ZapLogger) Info(msg string, fields ...Field) {
	l.logger.Info(msg, toZapFields(fields)...)
}

// Warn logs a warning message with optional fields
func (l *ZapLogger) Warn(msg string, fields ...Field) {
	l.logger.Warn(msg, toZapFields(fields)...)
}

// Error logs an error message with optional fields
func (l *ZapLogger) Error(msg string, fields ...Field) {
	l.logger.Error(msg, toZapFields(fields)...)
}

// With creates a child logger with the given fields.
func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{logger: l.logger.With(toZapFields(fields)...)}
}

// Close flushes buffered entries and closes the log file, if any.
func (l *ZapLogger) Close() error {
	// Sync on a terminal returns EINVAL on some platforms; nothing to do about it.
	_ = l.logger.Sync()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func toZapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case error:
			out[i] = zap.NamedError(f.Key, v)
		default:
			out[i] = zap.Any(f.Key, v)
		}
	}
	return out
}

// Helper functions for creating common fields

// StringField creates a string field
func StringField(key, value string) Field {
	return Field{Key: key, Value: value}
}

// IntField creates an integer field
func IntField(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// DurationField creates a duration field
func DurationField(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// ErrorField creates an error field
func ErrorField(err error) Field {
	return Field{Key: "error", Value: err}
}

// MethodField creates a SIP method field
func MethodField(method string) Field {
	return Field{Key: "sip_method", Value: method}
}

// AddressField creates an address field
func AddressField(key, address string) Field {
	return Field{Key: key, Value: address}
}

// ConnectionField creates a connection ID field
func ConnectionField(connID string) Field {
	return Field{Key: "conn_id", Value: connID}
}

// StatusField creates a SIP status code field
func StatusField(code int) Field {
	return Field{Key: "status_code", Value: code}
}

// LoggerConfig represents logger configuration
type LoggerConfig struct {
	Level string
	// File is the log file path. strftime patterns such as %Y%m%d are expanded
	// once at startup. Empty or "stdout" disables the file sink.
	File string
	// MaxSizeMB and MaxBackups control file rotation. Zero uses lumberjack's
	// defaults.
	MaxSizeMB  int
	MaxBackups int
	// Console receives the console sink. Nil means os.Stdout.
	Console io.Writer
}

// NewLoggerFromConfig creates a logger that writes to the console and, when a
// file is configured, to that file as well. Both sinks share one level.
func NewLoggerFromConfig(config LoggerConfig) (*ZapLogger, error) {
	level, err := ParseLogLevel(config.Level)
	if err != nil {
		return nil, err
	}
	enabler := zap.NewAtomicLevelAt(level)

	console := config.Console
	if console == nil {
		console = os.Stdout
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(console), zapcore.Lock(zapcore.AddSync(console)), enabler),
	}

	var closers []io.Closer
	if config.File != "" && config.File != "stdout" {
		path := ExpandLogPath(config.File, time.Now())
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
		}
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
		}
		closers = append(closers, rotator)
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), enabler))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &ZapLogger{logger: logger, closers: closers}, nil
}

// ExpandLogPath applies strftime patterns in path using t.
func ExpandLogPath(path string, t time.Time) string {
	if !strings.Contains(path, "%") {
		return path
	}
	return strftime.Format(path, t)
}

// consoleEncoder picks a human readable encoder for terminals and JSON for
// anything else.
func consoleEncoder(w io.Writer) zapcore.Encoder {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
}
