// Package netlog is netchannel's logging facade: Debug/Info/Warn/Error
// plus Section banners for long-lived processes, backed by
// go.uber.org/zap's structured SugaredLogger instead of a bespoke
// colored println wrapper. A library used by many concurrent
// Connections (one per peer, no shared state between them) must not
// coordinate through a package-level global logger, so every call site
// takes its own *Logger rather than reaching for a package default.
package netlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.SugaredLogger with the handful of level helpers
// call sites in this module use. A nil *Logger is valid and silent — so a
// Connection built without an explicit logger needs no nil check at any
// call site (use New/Nop for a non-nil one).
type Logger struct {
	z *zap.SugaredLogger
}

// New builds a development-style colored console logger (level Debug,
// timestamps on).
func New() *Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.TimeKey = "t"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	z, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op rather than letting a logging failure take
		// down the caller; logging is never load-bearing here.
		return Nop()
	}
	return &Logger{z: z.Sugar()}
}

// Nop returns a logger that discards everything, for tests and callers
// that don't want netchannel's log output at all.
func Nop() *Logger {
	return &Logger{z: zap.NewNop().Sugar()}
}

// With returns a child logger with the given structured fields attached
// to every subsequent call — used to stamp connection_id onto a
// connection's logger once at construction.
func (l *Logger) With(args ...interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{z: l.z.With(args...)}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.z.Debugw(msg, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.z.Infow(msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.z.Warnw(msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.z.Errorw(msg, args...)
}

// Success logs at info level with a "result=success" field — a distinct
// call site for successful outcomes, even though zap has no dedicated
// level for it; Info plus a field says the same thing structurally.
func (l *Logger) Success(msg string, args ...interface{}) {
	if l == nil {
		return
	}
	l.z.Infow(msg, append(args, "result", "success")...)
}

// Section prints a banner line to stderr directly, outside the structured
// logger — for the occasional human-facing test-run header, never for
// anything a log pipeline needs to parse.
func Section(title string) {
	os.Stderr.WriteString("=== " + title + " ===\n")
}
