package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/httpx"
	"github.com/atelier-market/api/internal/platform/requestctx"
)

const defaultLookupTimeout = 5 * time.Second

// ErrPrincipalNotFound is returned by a PrincipalDirectory when the id does not resolve.
var ErrPrincipalNotFound = errors.New("auth: principal not found")

// PrincipalDirectory loads principals by id for each kind.
type PrincipalDirectory interface {
	LookupShopper(ctx context.Context, id string) (domain.Principal, error)
	LookupShop(ctx context.Context, id string) (domain.Principal, error)
}

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// Authenticator resolves the request principal once and enforces the kind and role gates.
type Authenticator struct {
	verifier  Verifier
	directory PrincipalDirectory
	timeout   time.Duration
}

// NewAuthenticator wires token verification to principal lookup.
func NewAuthenticator(verifier Verifier, directory PrincipalDirectory) *Authenticator {
	return &Authenticator{verifier: verifier, directory: directory, timeout: defaultLookupTimeout}
}

// PrincipalFromContext returns the principal attached by one of the Require* middlewares.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	return requestctx.Principal(ctx)
}

// RequireShopper admits active shoppers. When roles are given the shopper must hold one of them.
func (a *Authenticator) RequireShopper(roles ...string) func(http.Handler) http.Handler {
	allowed := normaliseRoles(roles)
	return a.require(func(ctx context.Context, claims Claims) (domain.Principal, error) {
		if claims.Kind != "" && claims.Kind != domain.PrincipalShopper {
			return domain.Principal{}, ErrPrincipalNotFound
		}
		return a.directory.LookupShopper(ctx, claims.Subject)
	}, allowed)
}

// RequireShop admits active shops.
func (a *Authenticator) RequireShop() func(http.Handler) http.Handler {
	return a.require(func(ctx context.Context, claims Claims) (domain.Principal, error) {
		if claims.Kind != "" && claims.Kind != domain.PrincipalShop {
			return domain.Principal{}, ErrPrincipalNotFound
		}
		return a.directory.LookupShop(ctx, claims.Subject)
	}, nil)
}

// RequireAny admits either kind. Tokens pinning a kind resolve against that kind only; unpinned
// tokens try shoppers first, then shops.
func (a *Authenticator) RequireAny() func(http.Handler) http.Handler {
	return a.require(func(ctx context.Context, claims Claims) (domain.Principal, error) {
		switch claims.Kind {
		case domain.PrincipalShopper:
			return a.directory.LookupShopper(ctx, claims.Subject)
		case domain.PrincipalShop:
			return a.directory.LookupShop(ctx, claims.Subject)
		}
		principal, err := a.directory.LookupShopper(ctx, claims.Subject)
		if err == nil {
			return principal, nil
		}
		if !errors.Is(err, ErrPrincipalNotFound) {
			return domain.Principal{}, err
		}
		return a.directory.LookupShop(ctx, claims.Subject)
	}, nil)
}

type resolveFunc func(ctx context.Context, claims Claims) (domain.Principal, error)

func (a *Authenticator) require(resolve resolveFunc, roles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if a == nil || a.verifier == nil || a.directory == nil {
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "auth_unavailable", "authentication is not configured")
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization bearer token required")
				return
			}
			claims, err := a.verifier.Verify(raw)
			switch {
			case errors.Is(err, ErrTokenExpired):
				respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "token expired")
				return
			case err != nil:
				respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "token invalid")
				return
			}

			lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
			principal, err := resolve(lookupCtx, claims)
			cancel()
			if err != nil {
				if errors.Is(err, ErrPrincipalNotFound) {
					respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "principal not found")
					return
				}
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "auth_unavailable", "unable to resolve principal")
				return
			}
			if !principal.Active {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "account is inactive")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, strings.ToLower(principal.Role)) {
				respondAuthError(ctx, w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}

			ctx = requestctx.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func normaliseRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	return out
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
