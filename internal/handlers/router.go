package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atelier-market/api/internal/platform/httpx"
)

// RouteRegistrar mounts one resource group (orders, returns, ...) on its sub-router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	auth     RouteRegistrar
	products RouteRegistrar
	cart     RouteRegistrar
	orders   RouteRegistrar
	returns  RouteRegistrar
	reviews  RouteRegistrar
	internal RouteRegistrar

	internalMiddlewares []func(http.Handler) http.Handler
}

// Option wires one route group or middleware into NewRouter.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter serves /healthz and /readyz at the root and the marketplace groups under /api/v1.
// Request ids, client IPs and the request deadline are applied before any caller middleware.
// Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{basePath: defaultAPIPrefix, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string, groupMW []func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, mw := range groupMW {
					if mw != nil {
						group.Use(mw)
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/auth", cfg.auth, "auth", nil)
		mount("/products", cfg.products, "products", nil)
		mount("/cart", cfg.cart, "cart", nil)
		mount("/orders", cfg.orders, "orders", nil)
		mount("/returns", cfg.returns, "returns", nil)
		mount("/reviews", cfg.reviews, "reviews", nil)
		mount("/internal", cfg.internal, "internal", cfg.internalMiddlewares)
	})

	return r
}

// WithMiddlewares appends global middleware such as logging, tracing and CORS.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers supplies the liveness and readiness probes with build info and dependency checks.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAuthRoutes configures registration, login and /auth/me.
func WithAuthRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.auth = reg
	}
}

// WithProductRoutes configures the catalog endpoints.
func WithProductRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.products = reg
	}
}

// WithCartRoutes configures the shopper's single cart.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = reg
	}
}

// WithOrderRoutes configures checkout, order listing for shoppers and shops, and status changes.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithReturnRoutes configures return requests and their shop-side approval.
func WithReturnRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.returns = reg
	}
}

// WithReviewRoutes configures verified-purchase reviews, moderation and the public product listing.
func WithReviewRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.reviews = reg
	}
}

// WithInternalRoutes configures service-to-service maintenance such as rating recompute.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal = reg
	}
}

// WithInternalMiddlewares guards /internal, typically with the OIDC validator.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

// WithRequestTimeout sets the per-request deadline. Non-positive values keep the 60s default.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
