// Package observability wires structured logging, tracing and HTTP metrics.
package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atelier-market/api/internal/platform/requestctx"
)

// NewLogger builds a JSON zap logger using Cloud Logging field names. Unknown levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atomic := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if trimmed := strings.ToLower(strings.TrimSpace(level)); trimmed != "" {
		_ = atomic.UnmarshalText([]byte(trimmed))
	}

	cfg := zap.Config{
		Level:    atomic,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:   zapcore.CapitalLevelEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// ServiceLogger adapts zap to the event hook accepted by services. Events whose name ends in
// ".failed" or ".error" are logged at ERROR, ".forced" and ".skipped" at WARN.
func ServiceLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			logger = fallback
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		zapFields := make([]zap.Field, 0, len(keys)+1)
		zapFields = append(zapFields, zap.String("event", event))
		for _, k := range keys {
			if err, ok := fields[k].(error); ok {
				zapFields = append(zapFields, zap.NamedError(k, err))
				continue
			}
			zapFields = append(zapFields, zap.Any(k, fields[k]))
		}

		switch {
		case strings.HasSuffix(event, ".failed"), strings.HasSuffix(event, ".error"):
			logger.Error(event, zapFields...)
		case strings.HasSuffix(event, ".forced"), strings.HasSuffix(event, ".skipped"):
			logger.Warn(event, zapFields...)
		default:
			logger.Info(event, zapFields...)
		}
	}
}

// PrintfAdapter adapts zap to printf-style logging interfaces such as kafka-go's Logger.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
	level  zapcore.Level
}

// NewPrintfAdapter creates a PrintfAdapter writing at the given level.
func NewPrintfAdapter(logger *zap.Logger, level zapcore.Level) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar(), level: level}
}

// Printf implements printf-style logging.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Logf(a.level, format, args...)
}

func sanitize(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return cleaned
}
