package observability

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/atelier-market/api/internal/platform/httpx"
	"github.com/atelier-market/api/internal/platform/requestctx"
)

// InjectLoggerMiddleware stores the base logger on every request context.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware enriches the request logger with request, trace and principal fields
// and logs completion with status, latency and size. Metrics are recorded when non-nil.
func RequestLoggerMiddleware(metrics *HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := requestctx.Logger(ctx).With(
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", sanitize(r.Method, 10)),
				zap.String("path", sanitize(r.URL.Path, 180)),
				zap.String("trace_id", requestctx.TraceID(ctx)),
			)
			ctx = requestctx.WithLogger(ctx, logger)
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				route := routePattern(r)
				latency := time.Since(start)

				span := trace.SpanFromContext(ctx)
				span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				}
				metrics.Record(ctx, r.Method, route, status, latency)

				fields := []zap.Field{
					zap.String("route", route),
					zap.Int("status", status),
					zap.Duration("latency", latency),
					zap.Int("bytes", ww.BytesWritten()),
				}
				// the principal is attached by auth middleware deeper in the chain
				if principal, ok := requestctx.Principal(r.Context()); ok {
					fields = append(fields, zap.String("principal_kind", string(principal.Kind)), zap.String("principal_id", sanitize(principal.ID, 64)))
				}
				switch {
				case status >= http.StatusInternalServerError:
					logger.Error("request completed", fields...)
				case status >= http.StatusBadRequest:
					logger.Warn("request completed", fields...)
				default:
					logger.Info("request completed", fields...)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// RecoveryMiddleware turns panics into a logged 500 JSON response.
func RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil || rec == http.ErrAbortHandler {
					if rec != nil {
						panic(rec)
					}
					return
				}
				ctx := r.Context()
				requestctx.Logger(ctx).Error("panic recovered",
					zap.String("panic", fmt.Sprint(rec)),
					zap.ByteString("stack", debug.Stack()),
				)
				httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return sanitize(pattern, 180)
		}
	}
	return "unmatched"
}
