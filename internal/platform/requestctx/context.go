// Package requestctx carries request-scoped values (logger, trace, principal) through context.
package requestctx

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/atelier-market/api/internal/domain"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	principalKey
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	info, _ := ctx.Value(traceKey).(TraceInfo)
	return info.TraceID
}

// WithPrincipal attaches the authenticated principal. It is resolved once per request by the
// auth middleware and never re-fetched downstream.
func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, principal)
}

// Principal returns the authenticated principal when present.
func Principal(ctx context.Context) (domain.Principal, bool) {
	if ctx == nil {
		return domain.Principal{}, false
	}
	principal, ok := ctx.Value(principalKey).(domain.Principal)
	if !ok || principal.ID == "" {
		return domain.Principal{}, false
	}
	return principal, true
}
