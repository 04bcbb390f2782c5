package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &oidcFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     "k1",
			Algorithm: "RS256",
			Use:       "sig",
		}}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *oidcFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestRequireOIDC(t *testing.T) {
	fixture := newOIDCFixture(t)
	now := time.Unix(1_700_000_000, 0)
	cache := NewJWKSCache(fixture.server.URL, fixture.server.Client(), func() time.Time { return now })
	validator := NewOIDCValidator(cache, OIDCConfig{
		Audience: "https://api.example.com",
		Issuers:  []string{"https://accounts.google.com"},
		Now:      func() time.Time { return now },
	})

	var gotEmail string
	handler := validator.RequireOIDC()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := ServiceIdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected service identity")
		}
		gotEmail = identity.Email
		w.WriteHeader(http.StatusNoContent)
	}))

	base := jwt.MapClaims{
		"iss":   "https://accounts.google.com",
		"aud":   "https://api.example.com",
		"sub":   "svc-1",
		"email": "scheduler@project.iam.gserviceaccount.com",
		"exp":   now.Add(time.Hour).Unix(),
	}

	cases := []struct {
		name   string
		mutate func(jwt.MapClaims)
		header string
		status int
	}{
		{name: "valid", status: http.StatusNoContent},
		{name: "missing token", header: "-", status: http.StatusUnauthorized},
		{name: "wrong audience", mutate: func(c jwt.MapClaims) { c["aud"] = "other" }, status: http.StatusUnauthorized},
		{name: "wrong issuer", mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }, status: http.StatusUnauthorized},
		{name: "expired", mutate: func(c jwt.MapClaims) { c["exp"] = now.Add(-time.Minute).Unix() }, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := jwt.MapClaims{}
			for k, v := range base {
				claims[k] = v
			}
			if tc.mutate != nil {
				tc.mutate(claims)
			}
			req := httptest.NewRequest(http.MethodPost, "/internal/x", nil)
			if tc.header != "-" {
				req.Header.Set("Authorization", "Bearer "+fixture.sign(t, claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}

	if gotEmail != "scheduler@project.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %q", gotEmail)
	}
	if n := fixture.requests.Load(); n != 1 {
		t.Fatalf("expected keys fetched once, got %d", n)
	}
}

func TestRequireOIDCUnconfigured(t *testing.T) {
	validator := NewOIDCValidator(nil, OIDCConfig{})
	rec := httptest.NewRecorder()
	validator.RequireOIDC()(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=120, must-revalidate"); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", got)
	}
	if got := maxAge("no-cache"); got != defaultJWKSTTL {
		t.Fatalf("expected default ttl, got %s", got)
	}
}
