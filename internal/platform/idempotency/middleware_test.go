package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/requestctx"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func newRequest(key, body, shopperID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	if shopperID != "" {
		ctx := requestctx.WithPrincipal(req.Context(), domain.Principal{Kind: domain.PrincipalShopper, ID: shopperID, Active: true})
		req = req.WithContext(ctx)
	}
	return req
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"order":{"id":"ord_1"}}`))
	})
}

func TestMiddleware_WithoutHeaderPassesThrough(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(countingHandler(&calls, http.StatusCreated))

	for range 2 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newRequest("", `{"fromCart":true}`, "shp_1"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rr.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected both requests to run, got %d", calls)
	}
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(countingHandler(&calls, http.StatusCreated))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newRequest("checkout-1", `{"fromCart":true}`, "shp_1"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newRequest("checkout-1", `{"fromCart":true}`, "shp_1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(ReplayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if rr2.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type to be replayed")
	}
	if rr1.Body.String() != rr2.Body.String() {
		t.Fatalf("expected identical bodies, got %s and %s", rr1.Body.String(), rr2.Body.String())
	}
}

func TestMiddleware_KeysAreScopedToPrincipal(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest("same", `{}`, "shp_1"))
	handler.ServeHTTP(httptest.NewRecorder(), newRequest("same", `{}`, "shp_2"))
	if calls != 2 {
		t.Fatalf("expected separate principals not to share keys, got %d calls", calls)
	}
}

func TestMiddleware_ReusedKeyWithDifferentBody(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), newRequest("k", `{"fromCart":true}`, "shp_1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("k", `{"fromCart":false}`, "shp_1"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_reused")
}

func TestMiddleware_PendingReservation(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is held")
	}))

	body := `{"fromCart":true}`
	fingerprint := sha256Hex([]byte(http.MethodPost + "|/api/v1/orders|" + sha256Hex([]byte(body))))
	if _, _, err := store.Reserve(context.Background(), "shopper:shp_1|busy", fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("busy", body, "shp_1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_ServerErrorsReleaseKey(t *testing.T) {
	var calls int
	status := http.StatusServiceUnavailable
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("retry", `{}`, "shp_1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 passthrough, got %d", rr.Code)
	}

	status = http.StatusCreated
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest("retry", `{}`, "shp_1"))
	if rr.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry to run the handler again, got status %d after %d calls", rr.Code, calls)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Complete(ctx, "k", Record{Fingerprint: "f", Status: 201}, fixedTime, time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	state, _, err := store.Reserve(ctx, "k", "f", fixedTime.Add(30*time.Second), time.Minute)
	if err != nil || state != StateCompleted {
		t.Fatalf("expected completed state, got %v (%v)", state, err)
	}
	state, _, err = store.Reserve(ctx, "k", "other", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || state != StateNew {
		t.Fatalf("expected expired key to be reusable, got %v (%v)", state, err)
	}
}

func assertErrorCode(t *testing.T, body []byte, expected string) {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if payload["error"] != expected {
		t.Fatalf("expected error %s, got %v", expected, payload["error"])
	}
}
