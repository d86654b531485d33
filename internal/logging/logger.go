// Package logging wraps zap the way the rest of the pack does: a thin
// struct around a *zap.Logger with field-chaining helpers, writing
// exclusively to stderr since stdout carries protocol frames (spec §6).
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.Logger with a few convenience chains used across
// the subsystems (C2-C8).
type Logger struct {
	zl *zap.Logger
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// New builds a Logger writing to stderr. debug selects console encoding
// at debug level; otherwise JSON encoding at info level, matching the
// DEBUG configuration flag (spec §6).
func New(debug bool) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	level := zapcore.InfoLevel
	if debug {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
		level = zapcore.DebugLevel
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	return &Logger{zl: zap.New(core)}
}

// Default returns a process-wide info-level logger, built once.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLog = New(false)
	})
	return defaultLog
}

// Named returns a child logger tagged with a "component" field, the
// pattern every subsystem constructor uses.
func (l *Logger) Named(component string) *zap.Logger {
	return l.zl.With(zap.String("component", component))
}

// Zap exposes the underlying *zap.Logger for callers that want it raw.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered log entries; call on shutdown.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}
