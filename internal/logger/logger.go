// Package logger builds the zap logger shared by every pipeline stage.
// Interactive sessions log to a file (or nowhere) so output never lands on
// top of the menu; one-shot commands log warnings to stderr.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Verbose lowers the level from warn to debug.
	Verbose bool
	// Output receives log lines. Nil means os.Stderr.
	Output io.Writer
}

// New returns a console-encoded logger.
func New(opts Options) *zap.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := zapcore.WarnLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), level)
	return zap.New(core)
}

// OpenFile appends to path, creating it when missing. The returned close
// function flushes and closes the file.
func OpenFile(path string, verbose bool) (*zap.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	l := New(Options{Verbose: verbose, Output: f})
	return l, func() error {
		_ = l.Sync()
		return f.Close()
	}, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
