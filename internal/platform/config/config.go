// Package config loads runtime configuration from .env files, the process environment and
// Secret Manager references.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultRequestTimeout  = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultTokenTTL        = 7 * 24 * time.Hour
	defaultTokenIssuer     = "atelier-market"
	defaultReturnWindow    = 14 * 24 * time.Hour
	defaultEventsTopic     = "marketplace-events"
	defaultWritesPerMinute = 30
	defaultUploadURLTTL    = 15 * time.Minute
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultOIDCJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer      = "https://accounts.google.com"
)

// Store backends.
const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Event backends.
const (
	EventsNone   = "none"
	EventsPubSub = "pubsub"
	EventsKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Store         string
	Firestore     FirestoreConfig
	Auth          AuthConfig
	Returns       ReturnsConfig
	Reviews       ReviewsConfig
	Events        EventsConfig
	Redis         RedisConfig
	Idempotency   IdempotencyConfig
	CORS          CORSConfig
	Storage       StorageConfig
	Notifications NotificationsConfig
	Security      SecurityConfig
	LogLevel      string
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig configures principal tokens.
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Issuer      string
	BcryptCost  int
}

// ReturnsConfig configures the return workflow.
type ReturnsConfig struct {
	Window time.Duration
}

// ReviewsConfig configures review moderation.
type ReviewsConfig struct {
	AutoApprove bool
}

// EventsConfig selects and configures the domain event backend.
type EventsConfig struct {
	Backend      string
	Topic        string
	KafkaBrokers []string
}

// RedisConfig configures the rate limiter store. An empty Addr selects the in-process limiter.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	WritesPerMinute int
}

// IdempotencyConfig controls replay of retried create requests.
type IdempotencyConfig struct {
	TTL time.Duration
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// StorageConfig configures review media uploads.
type StorageConfig struct {
	ReviewMediaBucket string
	SignerKey         string
	UploadURLTTL      time.Duration
}

// NotificationsConfig toggles FCM push notifications.
type NotificationsConfig struct {
	Enabled         bool
	CredentialsFile string
}

// SecurityConfig groups service-to-service authentication settings.
type SecurityConfig struct {
	OIDC OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal endpoints.
type OIDCConfig struct {
	JWKSURL       string
	Audience      string
	Issuers       []string
	AllowedEmails []string
}

// SecretResolver resolves references to external secrets.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values taking precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// Load assembles configuration with precedence defaults < .env < environment < explicit map.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            lookup.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     lookup.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    lookup.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     lookup.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  lookup.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout: lookup.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Store: strings.ToLower(lookup.str("API_STORE", StoreFirestore)),
		Firestore: FirestoreConfig{
			ProjectID:    lookup.str("API_FIRESTORE_PROJECT_ID", lookup.str("GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: lookup.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			TokenSecret: lookup.str("API_AUTH_TOKEN_SECRET", ""),
			TokenTTL:    lookup.duration("API_AUTH_TOKEN_TTL", defaultTokenTTL),
			Issuer:      lookup.str("API_AUTH_TOKEN_ISSUER", defaultTokenIssuer),
			BcryptCost:  lookup.integer("API_AUTH_BCRYPT_COST", 0),
		},
		Returns: ReturnsConfig{
			Window: lookup.duration("API_RETURNS_WINDOW", defaultReturnWindow),
		},
		Reviews: ReviewsConfig{
			AutoApprove: lookup.boolean("API_REVIEWS_AUTO_APPROVE", true),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(lookup.str("API_EVENTS_BACKEND", EventsNone)),
			Topic:        lookup.str("API_EVENTS_TOPIC", defaultEventsTopic),
			KafkaBrokers: lookup.csv("API_EVENTS_KAFKA_BROKERS"),
		},
		Redis: RedisConfig{
			Addr:            lookup.str("API_REDIS_ADDR", ""),
			Password:        lookup.str("API_REDIS_PASSWORD", ""),
			DB:              lookup.integer("API_REDIS_DB", 0),
			WritesPerMinute: lookup.integer("API_RATELIMIT_WRITES_PER_MIN", defaultWritesPerMinute),
		},
		Idempotency: IdempotencyConfig{
			TTL: lookup.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		CORS: CORSConfig{
			AllowedOrigins: lookup.csv("API_CORS_ALLOWED_ORIGINS"),
		},
		Storage: StorageConfig{
			ReviewMediaBucket: lookup.str("API_STORAGE_REVIEW_MEDIA_BUCKET", ""),
			SignerKey:         lookup.str("API_STORAGE_SIGNER_KEY", ""),
			UploadURLTTL:      lookup.duration("API_STORAGE_UPLOAD_URL_TTL", defaultUploadURLTTL),
		},
		Notifications: NotificationsConfig{
			Enabled:         lookup.boolean("API_NOTIFICATIONS_ENABLED", false),
			CredentialsFile: lookup.str("API_NOTIFICATIONS_CREDENTIALS_FILE", ""),
		},
		Security: SecurityConfig{
			OIDC: OIDCConfig{
				JWKSURL:       lookup.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:      lookup.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:       lookup.csv("API_SECURITY_OIDC_ISSUERS"),
				AllowedEmails: lookup.csv("API_SECURITY_OIDC_ALLOWED_EMAILS"),
			},
		},
		LogLevel: lookup.str("LOG_LEVEL", "info"),
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	secretFields := []*string{
		&cfg.Auth.TokenSecret,
		&cfg.Redis.Password,
		&cfg.Storage.SignerKey,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var invalid []string
	add := func(field string) {
		if !slices.Contains(invalid, field) {
			invalid = append(invalid, field)
		}
	}
	if cfg.Server.Port == "" {
		add("Server.Port")
	}
	switch cfg.Store {
	case StoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			add("Firestore.ProjectID")
		}
	case StoreMemory:
	default:
		add("Store")
	}
	if len(cfg.Auth.TokenSecret) < 32 {
		add("Auth.TokenSecret")
	}
	if cfg.Auth.TokenTTL <= 0 {
		add("Auth.TokenTTL")
	}
	if cfg.Returns.Window <= 0 {
		add("Returns.Window")
	}
	switch cfg.Events.Backend {
	case EventsNone:
	case EventsPubSub:
		if cfg.Firestore.ProjectID == "" {
			add("Firestore.ProjectID")
		}
	case EventsKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			add("Events.KafkaBrokers")
		}
	default:
		add("Events.Backend")
	}
	if cfg.Redis.WritesPerMinute < 0 {
		add("Redis.WritesPerMinute")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "sm://"), "secret://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

// RedactedName hashes a secret field name for logging.
func RedactedName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
