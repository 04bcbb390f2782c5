package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atelier-market/api/internal/platform/requestctx"
)

func TestServiceLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logFn := ServiceLogger(zap.New(core))

	logFn(context.Background(), "order.created", map[string]any{"orderId": "o1"})
	logFn(context.Background(), "order.status.forced", nil)
	logFn(context.Background(), "shop.stats.failed", map[string]any{"error": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, entry := range entries {
		if entry.Level != wantLevels[i] {
			t.Fatalf("entry %d: expected level %s, got %s", i, wantLevels[i], entry.Level)
		}
	}
	if got := entries[0].ContextMap()["orderId"]; got != "o1" {
		t.Fatalf("expected orderId field, got %v", got)
	}
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)
	logFn := ServiceLogger(zap.New(fallbackCore))

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	logFn(ctx, "cart.cleared", nil)

	if requestLogs.Len() != 1 || fallbackLogs.Len() != 0 {
		t.Fatalf("expected entry on request logger, got request=%d fallback=%d", requestLogs.Len(), fallbackLogs.Len())
	}
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	handler := RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
}

func TestTraceMiddlewareContinuesCloudTrace(t *testing.T) {
	var traceID string
	handler := TraceMiddleware("proj")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traceID = requestctx.TraceID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if traceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected propagated trace id, got %q", traceID)
	}
}
