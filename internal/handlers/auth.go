package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/services"
)

// AuthHandlers exposes registration, login and the current principal for both principal kinds.
type AuthHandlers struct {
	authn    *auth.Authenticator
	accounts services.AuthService
}

// NewAuthHandlers constructs AuthHandlers.
func NewAuthHandlers(authn *auth.Authenticator, accounts services.AuthService) *AuthHandlers {
	return &AuthHandlers{authn: authn, accounts: accounts}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/shoppers/register", h.register(domain.PrincipalShopper))
	r.Post("/shoppers/login", h.login(domain.PrincipalShopper))
	r.Post("/shops/register", h.register(domain.PrincipalShop))
	r.Post("/shops/login", h.login(domain.PrincipalShop))
	r.With(h.authn.RequireAny()).Get("/me", h.me)
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string           `json:"token"`
	ExpiresAt string           `json:"expiresAt"`
	Principal principalPayload `json:"principal"`
}

func (h *AuthHandlers) register(kind domain.PrincipalKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.accounts == nil {
			writeUnavailable(ctx, w, "auth")
			return
		}
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cmd := services.RegisterCommand{Email: req.Email, Password: req.Password, Name: req.Name, Description: req.Description}
		var (
			result services.AuthResult
			err    error
		)
		if kind == domain.PrincipalShop {
			result, err = h.accounts.RegisterShop(ctx, cmd)
		} else {
			result, err = h.accounts.RegisterShopper(ctx, cmd)
		}
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusCreated, buildAuthResponse(result))
	}
}

func (h *AuthHandlers) login(kind domain.PrincipalKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.accounts == nil {
			writeUnavailable(ctx, w, "auth")
			return
		}
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cmd := services.LoginCommand{Email: req.Email, Password: req.Password}
		var (
			result services.AuthResult
			err    error
		)
		if kind == domain.PrincipalShop {
			result, err = h.accounts.LoginShop(ctx, cmd)
		} else {
			result, err = h.accounts.LoginShopper(ctx, cmd)
		}
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, buildAuthResponse(result))
	}
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"principal": buildPrincipalPayload(p)})
}

func buildAuthResponse(result services.AuthResult) authResponse {
	return authResponse{
		Token:     result.Token,
		ExpiresAt: formatTime(result.ExpiresAt),
		Principal: buildPrincipalPayload(result.Principal),
	}
}
