/*
Copyright the Fedikit contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level defines a log level for logging messages.
type Level = zapcore.Level

// Log levels.
const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
	PANIC = zapcore.PanicLevel
	FATAL = zapcore.FatalLevel
)

const defaultLevel = INFO

// ParseLevel returns the level from the given string.
func ParseLevel(level string) (Level, error) {
	switch level {
	case "DEBUG", "debug":
		return DEBUG, nil
	case "INFO", "info":
		return INFO, nil
	case "WARN", "warn", "WARNING", "warning":
		return WARN, nil
	case "ERROR", "error":
		return ERROR, nil
	case "PANIC", "panic":
		return PANIC, nil
	case "FATAL", "fatal":
		return FATAL, nil
	default:
		return ERROR, errors.New("log: invalid log level")
	}
}

type moduleLevels struct {
	levels       map[string]Level
	defaultLevel Level
	mutex        sync.RWMutex
}

func (l *moduleLevels) Get(module string) Level {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	level, ok := l.levels[module]
	if !ok {
		return l.defaultLevel
	}

	return level
}

func (l *moduleLevels) Set(module string, level Level) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.levels[module] = level
}

func (l *moduleLevels) SetDefault(level Level) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.defaultLevel = level
}

var levels = &moduleLevels{levels: make(map[string]Level), defaultLevel: defaultLevel} //nolint:gochecknoglobals

// SetLevel sets the log level of the given module.
func SetLevel(module string, level Level) {
	levels.Set(module, level)
}

// GetLevel returns the log level of the given module.
func GetLevel(module string) Level {
	return levels.Get(module)
}

// SetDefaultLevel sets the default log level for modules that have no explicit level set.
func SetDefaultLevel(level Level) {
	levels.SetDefault(level)
}

// Log is a leveled, module-scoped logger backed by zap.
type Log struct {
	instance *zap.Logger
	module   string
}

// Option is a logger option.
type Option func(o *options)

type options struct {
	fields []zap.Field
	stdOut zapcore.WriteSyncer
	stdErr zapcore.WriteSyncer
}

// WithFields sets fields that are added to every log record produced by the logger.
func WithFields(fields ...zap.Field) Option {
	return func(o *options) {
		o.fields = append(o.fields, fields...)
	}
}

// WithStdOut sets the output for logs of type DEBUG, INFO and WARN.
func WithStdOut(stdOut zapcore.WriteSyncer) Option {
	return func(o *options) {
		o.stdOut = stdOut
	}
}

// WithStdErr sets the output for logs of type ERROR, PANIC and FATAL.
func WithStdErr(stdErr zapcore.WriteSyncer) Option {
	return func(o *options) {
		o.stdErr = stdErr
	}
}

// New returns a new logger for the given module.
func New(module string, opts ...Option) *Log {
	o := &options{
		stdOut: zapcore.Lock(os.Stdout),
		stdErr: zapcore.Lock(os.Stderr),
	}

	for _, opt := range opts {
		opt(o)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, o.stdOut, zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level <= WARN && level >= levels.Get(module)
		})),
		zapcore.NewCore(encoder, o.stdErr, zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level > WARN && level >= levels.Get(module)
		})),
	)

	instance := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		Named(module).With(o.fields...)

	return &Log{instance: instance, module: module}
}

// IsEnabled returns true if the logger is enabled for the given level.
func (l *Log) IsEnabled(level Level) bool {
	return level >= levels.Get(l.module)
}

// Debug logs a message at DEBUG level.
func (l *Log) Debug(msg string, fields ...zap.Field) {
	l.instance.Debug(msg, fields...)
}

// Info logs a message at INFO level.
func (l *Log) Info(msg string, fields ...zap.Field) {
	l.instance.Info(msg, fields...)
}

// Warn logs a message at WARN level.
func (l *Log) Warn(msg string, fields ...zap.Field) {
	l.instance.Warn(msg, fields...)
}

// Error logs a message at ERROR level.
func (l *Log) Error(msg string, fields ...zap.Field) {
	l.instance.Error(msg, fields...)
}

// Panic logs a message at PANIC level and then panics.
func (l *Log) Panic(msg string, fields ...zap.Field) {
	l.instance.Panic(msg, fields...)
}

// Fatal logs a message at FATAL level and then calls os.Exit(1).
func (l *Log) Fatal(msg string, fields ...zap.Field) {
	l.instance.Fatal(msg, fields...)
}
