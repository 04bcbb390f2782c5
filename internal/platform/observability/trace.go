package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atelier-market/api/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

var tracer = otel.Tracer("github.com/atelier-market/api/internal/platform/observability")

// TraceMiddleware continues an incoming X-Cloud-Trace-Context, starts a server span and records
// the trace identifiers on the request context.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("user_agent.original", r.UserAgent()),
				),
			)
			defer span.End()

			sc := span.SpanContext()
			info := requestctx.TraceInfo{
				TraceID:   sc.TraceID().String(),
				SpanID:    sc.SpanID().String(),
				Sampled:   sc.IsSampled(),
				ProjectID: projectID,
			}
			if sc.IsValid() {
				sampled := "0"
				if info.Sampled {
					sampled = "1"
				}
				w.Header().Set(cloudTraceHeader, fmt.Sprintf("%s/%s;o=%s", info.TraceID, info.SpanID, sampled))
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithTrace(ctx, info)))
		})
	}
}

// parseCloudTrace understands "TRACE_ID/SPAN_ID;o=OPTIONS" where SPAN_ID is decimal.
func parseCloudTrace(header string) (trace.SpanContext, bool) {
	traceHex, rest, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanPart, options, _ := strings.Cut(rest, ";")
	spanNum, err := strconv.ParseUint(strings.TrimSpace(spanPart), 10, 64)
	if err != nil || spanNum == 0 {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(fmt.Sprintf("%016x", spanNum))
	if err != nil {
		return trace.SpanContext{}, false
	}
	var flags trace.TraceFlags
	if strings.TrimSpace(options) == "o=1" {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}
