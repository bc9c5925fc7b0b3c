package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolvault/pkg/errors"
)

var global *Logger

// Logger wraps zap.SugaredLogger. Error-level entries are forwarded to
// the configured tracker so they surface in error monitoring without a
// second call site.
type Logger struct {
	*zap.SugaredLogger
	tracker errors.Tracker
}

// Init builds the global logger. Production gets JSON output, every
// other environment gets the colored console encoder.
func Init(level string, env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	global = &Logger{SugaredLogger: l.Sugar()}
	return nil
}

// SetErrorTracker attaches the tracker that receives error-level entries
func SetErrorTracker(tracker errors.Tracker) {
	if global != nil {
		global.tracker = tracker
	}
}

// Get returns the global logger, building a development fallback when
// Init has not run (tests, early startup)
func Get() *Logger {
	if global == nil {
		l, _ := zap.NewDevelopment()
		global = &Logger{SugaredLogger: l.Sugar()}
	}
	return global
}

// With creates a child logger carrying additional fields
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		tracker:       l.tracker,
	}
}

// Error logs at error level and forwards to the tracker
func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)
	l.capture(errors.Wrapf(errors.ErrInternal, "%v", args))
}

// Errorf logs a formatted error and forwards to the tracker
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)
	l.capture(fmt.Errorf(template, args...))
}

// Errorw logs a structured error entry and forwards the message to the
// tracker
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	if l.tracker != nil {
		_ = l.tracker.CaptureMessage(context.Background(), msg, errors.LevelError, map[string]string{
			"component": "logger",
		})
	}
}

func (l *Logger) capture(err error) {
	if l.tracker == nil {
		return
	}
	_ = l.tracker.CaptureError(context.Background(), err, map[string]string{
		"component": "logger",
	})
}

// Sync flushes any buffered log entries
func Sync() error {
	if global != nil {
		return global.SugaredLogger.Sync()
	}
	return nil
}
