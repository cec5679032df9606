package dockit

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger
type Logger interface {
	Error(ctx context.Context, msg string, err error, tags map[string]any)
	Info(ctx context.Context, msg string, tags map[string]any)
	Debug(ctx context.Context, msg string, tags map[string]any)
	Warn(ctx context.Context, msg string, tags map[string]any)
}

type defaultLogger struct {
	logger *zap.Logger
}

// NewLogger returns a structured json logger with the given level and default fields
func NewLogger(level string, defaultFields map[string]any) (Logger, error) {
	cfg := zap.NewProductionConfig()
	var opts = []zap.Option{
		zap.WithCaller(true),
		zap.AddCallerSkip(1),
	}
	for k, v := range defaultFields {
		opts = append(opts, zap.Fields(zap.Any(k, v)))
	}
	cfg.Level = zap.NewAtomicLevelAt(getLevel(level))
	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	return &defaultLogger{logger: logger}, nil
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	return &defaultLogger{logger: zap.NewNop()}
}

func fields(tags map[string]any) []zap.Field {
	var out = make([]zap.Field, 0, len(tags))
	for k, v := range tags {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (d defaultLogger) Error(ctx context.Context, msg string, err error, tags map[string]any) {
	d.logger.Error(msg, append(fields(tags), zap.Error(err))...)
}

func (d defaultLogger) Info(ctx context.Context, msg string, tags map[string]any) {
	d.logger.Info(msg, fields(tags)...)
}

func (d defaultLogger) Debug(ctx context.Context, msg string, tags map[string]any) {
	if !d.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	d.logger.Debug(msg, fields(tags)...)
}

func (d defaultLogger) Warn(ctx context.Context, msg string, tags map[string]any) {
	d.logger.Warn(msg, fields(tags)...)
}

func getLevel(level string) zapcore.Level {
	levelMap := map[string]zapcore.Level{
		"error":   zap.ErrorLevel,
		"warn":    zap.WarnLevel,
		"warning": zap.WarnLevel,
		"info":    zap.InfoLevel,
		"debug":   zap.DebugLevel,
	}
	l, ok := levelMap[strings.ToLower(level)]
	if !ok {
		return zap.InfoLevel
	}
	return l
}
