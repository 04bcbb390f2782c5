package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atelier-market/api/internal/platform/httpx"
	"github.com/atelier-market/api/internal/platform/requestctx"
)

const (
	// HeaderName carries the client chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks replayed responses.
	ReplayHeader = "Idempotent-Replayed"

	maxKeyLength = 255
)

// Logger receives store failures that do not change the response.
type Logger interface {
	Printf(format string, args ...any)
}

type options struct {
	ttl    time.Duration
	clock  func() time.Time
	logger Logger
}

// Option customises the middleware.
type Option func(*options)

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Middleware guards create endpoints. Requests without the header pass through untouched. Keys are
// scoped to the authenticated principal, so it must run after the auth middleware. Server errors
// are not stored and release the key so the client can retry.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := options{ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "Idempotency-Key is too long", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := requester(r) + "|" + key
			fingerprint := sha256Hex([]byte(r.Method + "|" + r.URL.Path + "|" + sha256Hex(body)))

			state, record, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock().UTC(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "Idempotency-Key was used for a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				cfg.logf("idempotency: reserve failed: %v", err)
				httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "unable to process Idempotency-Key", http.StatusServiceUnavailable))
				return
			}

			switch state {
			case StateCompleted:
				replay(w, record)
				return
			case StatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this Idempotency-Key is in progress", http.StatusConflict))
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.status() >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					cfg.logf("idempotency: release failed: %v", err)
				}
			} else {
				stored := Record{Fingerprint: fingerprint, Status: rec.status(), Headers: replayableHeaders(rec.header), Body: rec.body.Bytes()}
				if err := store.Complete(ctx, scoped, stored, cfg.clock().UTC(), cfg.ttl); err != nil {
					cfg.logf("idempotency: complete failed: %v", err)
				}
			}
			rec.flush(w)
		})
	}
}

func (o options) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

func requester(r *http.Request) string {
	if principal, ok := requestctx.Principal(r.Context()); ok {
		return string(principal.Kind) + ":" + principal.ID
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.Headers {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := record.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

type recorder struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.code == 0 {
		r.code = status
	}
}

func (r *recorder) Write(data []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *recorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

func (r *recorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.status())
	_, _ = w.Write(r.body.Bytes())
}
