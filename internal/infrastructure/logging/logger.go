package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger with the kernel's field conventions.
type Logger struct {
	*zap.Logger
}

// Config selects level, encoding and sinks.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoding with colour and stack traces
	OutputPaths []string
}

// DefaultConfig logs JSON at info to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", OutputPaths: []string{"stderr"}}
}

// New builds a logger from cfg.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = cfg.OutputPaths
	zc.Sampling = nil
	zc.EncoderConfig = encoder(cfg.Development)
	if cfg.Development {
		zc.Development = true
		zc.Encoding = "console"
	} else {
		zc.DisableStacktrace = true
	}

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

func encoder(dev bool) zapcore.EncoderConfig {
	if dev {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return ec
	}
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

// NewDevelopment is a debug-level console logger. It falls back to a
// no-op logger if stderr cannot be opened.
func NewDevelopment() *Logger {
	l, err := New(Config{Level: "debug", Development: true})
	if err != nil {
		return NewNop()
	}
	return l
}

// NewNop discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named appends a name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With adds fields to every entry of the child.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// EnvID formats an environment id as eight hex digits, the way the
// console prints them.
func EnvID[T ~int32 | ~uint32](key string, id T) zap.Field {
	return zap.String(key, fmt.Sprintf("%08x", uint32(id)))
}

// VA formats a user virtual address.
func VA(key string, va uint32) zap.Field {
	return zap.String(key, fmt.Sprintf("%08x", va))
}
