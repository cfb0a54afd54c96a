package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	GlobalLogLevel LogLevel = LogLevelInfo

	mu   sync.RWMutex
	base *zap.Logger
)

// Setup builds the process logger. Development mode writes colored console
// lines, everything else writes JSON.
func Setup(level LogLevel, development bool) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), toZapLevel(level))

	mu.Lock()
	defer mu.Unlock()
	GlobalLogLevel = level
	base = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetBase swaps the underlying zap logger. Tests use it with zaptest/observer.
func SetBase(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return zap.NewNop()
	}
	return base
}

func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn, "warning":
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type Log struct {
	err    error
	fields []zap.Field
}

func New() *Log {
	return &Log{}
}

func (l *Log) WithError(err error) *Log {
	return &Log{err: err, fields: l.fields}
}

// With attaches a key/value pair to every line written by the returned Log.
func (l *Log) With(key string, value interface{}) *Log {
	fields := make([]zap.Field, 0, len(l.fields)+1)
	fields = append(fields, l.fields...)
	fields = append(fields, zap.Any(key, value))
	return &Log{err: l.err, fields: fields}
}

func (l *Log) all() []zap.Field {
	if l.err == nil {
		return l.fields
	}
	return append(append([]zap.Field{}, l.fields...), zap.Error(l.err))
}

func (l *Log) Debug(msg string) {
	current().Debug(msg, l.all()...)
}

func (l *Log) Info(msg string) {
	current().Info(msg, l.all()...)
}

func (l *Log) Warn(msg string) {
	current().Warn(msg, l.all()...)
}

func (l *Log) Error(msg string) {
	current().Error(msg, l.all()...)
}
