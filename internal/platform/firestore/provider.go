// Package firestore wraps the Firestore client with lazy initialisation, typed collections and
// repository error semantics.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/atelier-market/api/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
)

// ErrProviderClosed is returned after Close.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider lazily initialises one shared Firestore client.
type Provider struct {
	cfg        config.FirestoreConfig
	clientOpts []option.ClientOption

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// NewProvider constructs a Provider using the supplied configuration.
func NewProvider(cfg config.FirestoreConfig, opts ...option.ClientOption) *Provider {
	return &Provider{cfg: cfg, clientOpts: opts}
}

// Client returns the shared client, creating it on first use.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	projectID := strings.TrimSpace(p.cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	opts := append([]option.ClientOption(nil), p.clientOpts...)
	if host := p.emulatorHost(); host != "" {
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	p.client = client
	return client, nil
}

// Ping performs a cheap read used by readiness probes.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection("_health").Doc("ping").Get(ctx)
	if err != nil && !isNotFound(err) {
		return WrapError("firestore.ping", err)
	}
	return nil
}

// Close releases the client. The Provider cannot be reused afterwards.
func (p *Provider) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// RunTransaction executes fn inside a Firestore transaction using the provider's client.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return RunTransaction(ctx, client, fn, opts...)
}

func (p *Provider) emulatorHost() string {
	if host := strings.TrimSpace(p.cfg.EmulatorHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv(envEmulatorHost))
}
