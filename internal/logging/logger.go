// Package logging wraps zap with a small structured-field API used by
// every component in the module.
package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Logger is a leveled JSON logger backed by zap.
type Logger struct {
	mu          sync.RWMutex
	base        *zap.Logger
	atomicLevel zap.AtomicLevel
}

// Entry carries accumulated fields toward a single log call.
type Entry struct {
	logger *Logger
	fields []zap.Field
}

// New returns a production JSON logger writing to stdout at info level.
func New() *Logger {
	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		atomicLevel,
	)

	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{base: base, atomicLevel: atomicLevel}
}

// NewNop returns a logger that discards everything. Backtest replay uses
// it so per-bar execution produces no output.
func NewNop() *Logger {
	return &Logger{base: zap.NewNop(), atomicLevel: zap.NewAtomicLevel()}
}

// SetLevel changes the minimum level from its string form
// ("debug", "info", "warn", "error"). Unknown values keep info.
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	l.atomicLevel.SetLevel(parsed)
}

func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: []zap.Field{zap.Any(key, value)}}
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: toZapFields(fields)}
}

func (l *Logger) WithError(err error) *Entry {
	return &Entry{logger: l, fields: []zap.Field{zap.Error(err)}}
}

func (l *Logger) Debug(args ...interface{}) { l.base.Debug(fmt.Sprint(args...)) }
func (l *Logger) Info(args ...interface{})  { l.base.Info(fmt.Sprint(args...)) }
func (l *Logger) Warn(args ...interface{})  { l.base.Warn(fmt.Sprint(args...)) }
func (l *Logger) Error(args ...interface{}) { l.base.Error(fmt.Sprint(args...)) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.base.Debug(fmt.Sprintf(format, args...))
}
func (l *Logger) Infof(format string, args ...interface{}) { l.base.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{}) { l.base.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.base.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Sync() error { return l.base.Sync() }

func (e *Entry) WithField(key string, value interface{}) *Entry {
	newFields := append(copyFields(e.fields), zap.Any(key, value))
	return &Entry{logger: e.logger, fields: newFields}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	newFields := append(copyFields(e.fields), toZapFields(fields)...)
	return &Entry{logger: e.logger, fields: newFields}
}

func (e *Entry) WithError(err error) *Entry {
	newFields := append(copyFields(e.fields), zap.Error(err))
	return &Entry{logger: e.logger, fields: newFields}
}

func (e *Entry) Debug(args ...interface{}) {
	e.logger.base.With(e.fields...).Debug(fmt.Sprint(args...))
}

func (e *Entry) Info(args ...interface{}) {
	e.logger.base.With(e.fields...).Info(fmt.Sprint(args...))
}

func (e *Entry) Warn(args ...interface{}) {
	e.logger.base.With(e.fields...).Warn(fmt.Sprint(args...))
}

func (e *Entry) Error(args ...interface{}) {
	e.logger.base.With(e.fields...).Error(fmt.Sprint(args...))
}

func (e *Entry) Infof(format string, args ...interface{}) {
	e.logger.base.With(e.fields...).Info(fmt.Sprintf(format, args...))
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	e.logger.base.With(e.fields...).Warn(fmt.Sprintf(format, args...))
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.logger.base.With(e.fields...).Error(fmt.Sprintf(format, args...))
}

func toZapFields(fields Fields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		out = append(out, zap.Any(key, value))
	}
	return out
}

func copyFields(in []zap.Field) []zap.Field {
	out := make([]zap.Field, len(in))
	copy(out, in)
	return out
}
