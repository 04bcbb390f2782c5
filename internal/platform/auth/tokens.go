// Package auth resolves marketplace principals from bearer tokens and guards service-to-service routes.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	domain "github.com/atelier-market/api/internal/domain"
)

const (
	defaultTokenTTL = 7 * 24 * time.Hour
	minSecretLength = 32
)

var (
	// ErrTokenExpired signals an expired principal token.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals a malformed, tampered or otherwise unusable token.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims is the payload of a principal token.
type Claims struct {
	Kind domain.PrincipalKind `json:"kind,omitempty"`
	Role string               `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 principal tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithTokenIssuer sets the iss claim written and required on verification.
func WithTokenIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		t.issuer = strings.TrimSpace(issuer)
	}
}

// WithTokenClock injects a time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer constructs an issuer. The secret must be at least 32 bytes.
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d bytes", minSecretLength)
	}
	issuer := &TokenIssuer{
		secret: []byte(secret),
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer, nil
}

// Issue signs a token for the principal and returns it with its expiry.
func (t *TokenIssuer) Issue(principal domain.Principal) (string, time.Time, error) {
	if principal.ID == "" || (principal.Kind != domain.PrincipalShopper && principal.Kind != domain.PrincipalShop) {
		return "", time.Time{}, fmt.Errorf("auth: cannot issue token for incomplete principal")
	}
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := Claims{
		Kind: principal.Kind,
		Role: principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, expiry and issuer and returns the claims.
func (t *TokenIssuer) Verify(token string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrTokenInvalid)
	}
	if !claims.VerifyExpiresAt(t.now(), true) {
		return Claims{}, ErrTokenExpired
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	return claims, nil
}
