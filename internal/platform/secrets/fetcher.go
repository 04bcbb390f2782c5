// Package secrets resolves secret:// references against Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const meterName = "github.com/atelier-market/api/internal/platform/secrets"

// ErrInvalidReference reports a malformed secret:// reference.
var ErrInvalidReference = errors.New("secrets: invalid reference")

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves and caches secret values for the lifetime of the process.
type Fetcher struct {
	client    accessor
	projectID string
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]string

	latency metric.Float64Histogram
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Secret Manager client for projectID. References without an explicit
// project resolve against it.
func NewFetcher(ctx context.Context, projectID string, clientOpts []option.ClientOption, opts ...Option) (*Fetcher, error) {
	client, err := secretmanager.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("secrets: create client: %w", err)
	}
	return newFetcher(client, projectID, opts...), nil
}

func newFetcher(client accessor, projectID string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    client,
		projectID: strings.TrimSpace(projectID),
		logger:    zap.NewNop(),
		cache:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	latency, err := otel.Meter(meterName).Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret Manager access latency"),
	)
	if err != nil {
		f.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}
	f.latency = latency
	return f
}

// Close releases the underlying client.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Resolve returns the secret payload for ref ("secret://name", "secret://name#version" or
// "secret://projects/p/secrets/name").
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	name, err := f.versionName(ref)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	if cached, ok := f.cache[name]; ok {
		f.mu.Unlock()
		return cached, nil
	}
	f.mu.Unlock()

	start := time.Now()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name},
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	)
	f.record(ctx, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}

	value := strings.TrimSpace(string(resp.GetPayload().GetData()))
	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()
	f.logger.Debug("secret resolved", zap.String("name", name))
	return value, nil
}

func (f *Fetcher) versionName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, "secret://") {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	path, version, _ := strings.Cut(strings.TrimPrefix(trimmed, "secret://"), "#")
	if version == "" {
		version = "latest"
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	if strings.HasPrefix(path, "projects/") {
		return path + "/versions/" + version, nil
	}
	if f.projectID == "" {
		return "", fmt.Errorf("%w: no project for %q", ErrInvalidReference, ref)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, path, version), nil
}

func (f *Fetcher) record(ctx context.Context, d time.Duration, err error) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attribute.Bool("success", err == nil)))
}
