package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/atelier-market/api/internal/platform/requestctx"
)

// GoogleJWKSURL serves the keys Google uses to sign service-account identity tokens.
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

const defaultJWKSTTL = time.Hour

var (
	// ErrJWKSKeyNotFound is returned when a kid is absent even after a refresh.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing keys.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

// JWKSCache fetches a JSON Web Key Set on demand and keeps it for the Cache-Control max-age.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// NewJWKSCache constructs a cache for url. A nil client uses a 10s-timeout default client.
func NewJWKSCache(url string, client *http.Client, now func() time.Time) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	return &JWKSCache{url: url, client: client, now: now}
}

// Key returns the public key for kid, refreshing once when expired or when kid is unknown.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) == 0 || !c.now().Before(c.expiry) {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	if jwk, ok := c.keys[kid]; ok {
		return jwk.Key, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if jwk, ok := c.keys[kid]; ok {
		return jwk.Key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	c.keys = keys
	c.expiry = c.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	return nil
}

func maxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultJWKSTTL
}

// ServiceIdentity is the verified caller of an internal endpoint.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityKey struct{}

// ServiceIdentityFromContext returns the identity attached by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(ServiceIdentity)
	return identity, ok
}

// OIDCValidator verifies Google-signed identity tokens for internal routes.
type OIDCValidator struct {
	keys          *JWKSCache
	audience      string
	issuers       []string
	allowedEmails []string
	now           func() time.Time
	verifications metric.Int64Counter
}

// OIDCConfig configures an OIDCValidator.
type OIDCConfig struct {
	Audience      string
	Issuers       []string
	AllowedEmails []string
	Now           func() time.Time
}

// NewOIDCValidator builds a validator that counts outcomes on the global meter.
func NewOIDCValidator(keys *JWKSCache, cfg OIDCConfig) *OIDCValidator {
	counter, err := otel.Meter("github.com/atelier-market/api/internal/platform/auth").Int64Counter(
		"auth.oidc.verifications",
		metric.WithDescription("OIDC verification outcomes"),
	)
	if err != nil {
		counter = nil
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OIDCValidator{
		keys:          keys,
		audience:      strings.TrimSpace(cfg.Audience),
		issuers:       cfg.Issuers,
		allowedEmails: cfg.AllowedEmails,
		now:           now,
		verifications: counter,
	}
}

// RequireOIDC rejects requests without a valid identity token for the configured audience.
func (v *OIDCValidator) RequireOIDC() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if v == nil || v.keys == nil || v.audience == "" {
				v.record(ctx, "unconfigured")
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "oidc verification not configured")
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				v.record(ctx, "missing")
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "identity token required")
				return
			}

			identity, reason, err := v.verify(ctx, raw)
			if err != nil {
				v.record(ctx, reason)
				requestctx.Logger(ctx).Warn("oidc verification failed", zap.String("reason", reason), zap.Error(err))
				status := http.StatusUnauthorized
				if errors.Is(err, ErrJWKSFetchFailed) {
					status = http.StatusServiceUnavailable
				}
				respondAuthError(ctx, w, status, "invalid_token", "identity token rejected")
				return
			}
			v.record(ctx, "ok")
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, serviceIdentityKey{}, identity)))
		})
	}
}

func (v *OIDCValidator) verify(ctx context.Context, raw string) (ServiceIdentity, string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return ServiceIdentity{}, "jwks_unavailable", err
		}
		return ServiceIdentity{}, "invalid", err
	}
	now := v.now()
	if !claims.VerifyExpiresAt(now.Unix(), true) {
		return ServiceIdentity{}, "expired", ErrTokenExpired
	}
	if !claims.VerifyAudience(v.audience, true) {
		return ServiceIdentity{}, "audience_mismatch", fmt.Errorf("%w: audience", ErrTokenInvalid)
	}
	issuer, _ := claims["iss"].(string)
	if len(v.issuers) > 0 && !slices.Contains(v.issuers, issuer) {
		return ServiceIdentity{}, "issuer_mismatch", fmt.Errorf("%w: issuer %q", ErrTokenInvalid, issuer)
	}
	email, _ := claims["email"].(string)
	if len(v.allowedEmails) > 0 && !slices.Contains(v.allowedEmails, email) {
		return ServiceIdentity{}, "email_not_allowed", fmt.Errorf("%w: caller %q", ErrTokenInvalid, email)
	}
	subject, _ := claims["sub"].(string)
	return ServiceIdentity{Subject: subject, Email: email, Issuer: issuer}, "", nil
}

func (v *OIDCValidator) record(ctx context.Context, outcome string) {
	if v == nil || v.verifications == nil {
		return
	}
	v.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
