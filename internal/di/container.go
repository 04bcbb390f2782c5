package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"

	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/platform/config"
	"github.com/atelier-market/api/internal/platform/events"
	pfirestore "github.com/atelier-market/api/internal/platform/firestore"
	"github.com/atelier-market/api/internal/platform/idempotency"
	"github.com/atelier-market/api/internal/platform/notify"
	"github.com/atelier-market/api/internal/platform/observability"
	"github.com/atelier-market/api/internal/platform/ratelimit"
	"github.com/atelier-market/api/internal/platform/requestctx"
	"github.com/atelier-market/api/internal/platform/storage"
	"github.com/atelier-market/api/internal/repositories"
	firestoreRepo "github.com/atelier-market/api/internal/repositories/firestore"
	"github.com/atelier-market/api/internal/repositories/memory"
	"github.com/atelier-market/api/internal/services"
)

const readinessTimeout = 2 * time.Second

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Auth     services.AuthService
	Products services.ProductService
	Carts    services.CartService
	Orders   services.OrderService
	Returns  services.ReturnService
	Reviews  services.ReviewService
	Ratings  services.RatingAggregator
}

// Container wires repositories, services, and infrastructure clients for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Services     Services
	Tokens       *auth.TokenIssuer
	Authn        *auth.Authenticator
	Readiness    *repositories.ReadinessChecker
	OIDC         *auth.OIDCValidator

	idempotency idempotency.Store
	limiter     ratelimit.Limiter
	closers     []func(context.Context) error
}

// NewContainer constructs the runtime dependencies selected by cfg. The memory store needs no
// external services and is what local runs and tests use.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg, Logger: logger}

	var probes []repositories.Probe
	switch cfg.Store {
	case config.StoreMemory:
		c.Repositories = memory.NewRegistry()
		c.idempotency = idempotency.NewMemoryStore()
	default:
		provider := pfirestore.NewProvider(cfg.Firestore)
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		c.Repositories = reg
		c.idempotency = idempotency.NewFirestoreStore(provider)
		probes = append(probes, repositories.Probe{Name: "firestore", Check: provider.Ping})
	}
	c.closers = append(c.closers, c.Repositories.Close)

	publisher, err := c.buildPublisher(ctx)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error { return publisher.Close() })

	notifier, err := c.buildNotifier(ctx)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	if probe, ok := c.buildLimiter(); ok {
		probes = append(probes, probe)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret,
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithTokenIssuer(cfg.Auth.Issuer),
	)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("build token issuer: %w", err)
	}
	c.Tokens = tokens

	images, err := buildImageSigner(cfg.Storage)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	svc, err := buildServices(c.Repositories, cfg, sideEffects{
		events:   publisher,
		notifier: notifier,
		images:   images,
		tokens:   tokens,
		log:      observability.ServiceLogger(logger.Named("services")),
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc
	c.Authn = auth.NewAuthenticator(tokens, svc.Auth)
	c.Readiness = repositories.NewReadinessChecker(probes, readinessTimeout, time.Now)

	if audience := strings.TrimSpace(cfg.Security.OIDC.Audience); audience != "" {
		keys := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, &http.Client{Timeout: 5 * time.Second}, time.Now)
		c.OIDC = auth.NewOIDCValidator(keys, auth.OIDCConfig{
			Audience:      audience,
			Issuers:       cfg.Security.OIDC.Issuers,
			AllowedEmails: cfg.Security.OIDC.AllowedEmails,
		})
	}
	return c, nil
}

// CreateGuard throttles write requests per principal and replays retried requests that carry an
// Idempotency-Key. It runs after the auth gate so both are keyed by the resolved principal.
func (c *Container) CreateGuard() func(http.Handler) http.Handler {
	limit := ratelimit.Middleware(c.limiter, principalKey, func(r *http.Request, err error) {
		requestctx.Logger(r.Context()).Warn("rate limiter unavailable; allowing request", zap.Error(err))
	})
	replay := idempotency.Middleware(c.idempotency,
		idempotency.WithTTL(c.Config.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(c.Logger.Named("idempotency"), zapcore.WarnLevel)),
	)
	return func(next http.Handler) http.Handler {
		return limit(replay(next))
	}
}

// InternalMiddlewares returns the gate for /internal routes. Without an OIDC audience the routes
// stay open, which is only acceptable behind a private ingress.
func (c *Container) InternalMiddlewares() []func(http.Handler) http.Handler {
	if c.OIDC == nil {
		c.Logger.Warn("internal routes are not protected; set API_SECURITY_OIDC_AUDIENCE")
		return nil
	}
	return []func(http.Handler) http.Handler{c.OIDC.RequireOIDC()}
}

// Close releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildPublisher(ctx context.Context) (events.Publisher, error) {
	cfg := c.Config.Events
	switch cfg.Backend {
	case config.EventsPubSub:
		client, err := pubsub.NewClient(ctx, c.Config.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		publisher, err := events.NewPubSubPublisher(client, cfg.Topic)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return publisher, nil
	case config.EventsKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic)
	default:
		return events.Noop{}, nil
	}
}

func (c *Container) buildNotifier(ctx context.Context) (notify.Notifier, error) {
	cfg := c.Config.Notifications
	if !cfg.Enabled {
		return notify.Noop{}, nil
	}
	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	fcm, err := notify.NewFCM(ctx, c.Config.Firestore.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	return fcm, nil
}

// buildLimiter prefers Redis so limits hold across instances. The Redis probe is optional: a
// limiter outage fails open and only degrades readiness.
func (c *Container) buildLimiter() (repositories.Probe, bool) {
	cfg := c.Config.Redis
	if strings.TrimSpace(cfg.Addr) == "" {
		if limiter := ratelimit.NewMemory(cfg.WritesPerMinute, time.Minute, time.Now); limiter != nil {
			c.limiter = limiter
		}
		return repositories.Probe{}, false
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	if limiter := ratelimit.NewRedis(client, cfg.WritesPerMinute, time.Minute); limiter != nil {
		c.limiter = limiter
	}
	return repositories.Probe{
		Name:     "redis",
		Optional: true,
		Check:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}, true
}

func buildImageSigner(cfg config.StorageConfig) (services.ReviewImageSigner, error) {
	bucket := strings.TrimSpace(cfg.ReviewMediaBucket)
	key := strings.TrimSpace(cfg.SignerKey)
	if bucket == "" || key == "" {
		return nil, nil
	}
	signer, err := storage.NewServiceAccountSignerFromJSON([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("parse storage signer key: %w", err)
	}
	uploads, err := storage.NewUploadSigner(bucket, signer, cfg.UploadURLTTL, time.Now)
	if err != nil {
		return nil, fmt.Errorf("build upload signer: %w", err)
	}
	return uploads, nil
}

type sideEffects struct {
	events   events.Publisher
	notifier notify.Notifier
	images   services.ReviewImageSigner
	tokens   *auth.TokenIssuer
	log      services.Logger
}

func buildServices(reg repositories.Registry, cfg config.Config, fx sideEffects) (Services, error) {
	var svc Services
	var err error

	svc.Auth, err = services.NewAuthService(services.AuthServiceDeps{
		Shoppers: reg.Shoppers(),
		Shops:    reg.Shops(),
		Tokens:   fx.tokens,
		Hasher:   auth.NewHasher(cfg.Auth.BcryptCost),
		Clock:    time.Now,
		Logger:   fx.log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build auth service: %w", err)
	}

	svc.Products, err = services.NewProductService(services.ProductServiceDeps{
		Products: reg.Products(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product service: %w", err)
	}

	svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Products: reg.Products(),
		Shops:    reg.Shops(),
		Carts:    reg.Carts(),
		Events:   fx.events,
		Notifier: fx.notifier,
		Clock:    time.Now,
		Logger:   fx.log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Returns, err = services.NewReturnService(services.ReturnServiceDeps{
		Returns:  reg.Returns(),
		Orders:   reg.Orders(),
		Events:   fx.events,
		Notifier: fx.notifier,
		Window:   cfg.Returns.Window,
		Clock:    time.Now,
		Logger:   fx.log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}

	svc.Ratings, err = services.NewRatingAggregator(services.RatingAggregatorDeps{
		Reviews:  reg.Reviews(),
		Products: reg.Products(),
		Events:   fx.events,
		Clock:    time.Now,
		Logger:   fx.log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rating aggregator: %w", err)
	}

	svc.Reviews, err = services.NewReviewService(services.ReviewServiceDeps{
		Reviews:           reg.Reviews(),
		Orders:            reg.Orders(),
		Products:          reg.Products(),
		Ratings:           svc.Ratings,
		Images:            fx.images,
		Events:            fx.events,
		RequireModeration: !cfg.Reviews.AutoApprove,
		Clock:             time.Now,
		Logger:            fx.log,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	return svc, nil
}

func principalKey(r *http.Request) string {
	if principal, ok := requestctx.Principal(r.Context()); ok {
		return string(principal.Kind) + ":" + principal.ID
	}
	return "ip:" + r.RemoteAddr
}
