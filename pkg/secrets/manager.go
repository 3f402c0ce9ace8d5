package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/config"
	"github.com/luxtransfer/booking/pkg/logger"
)

// ProviderType enumerates supported secret backends.
type ProviderType string

const (
	ProviderNone  ProviderType = ""
	ProviderVault ProviderType = "vault"
	ProviderAWS   ProviderType = "aws"
	ProviderGCP   ProviderType = "gcp"
)

var (
	// ErrProviderNotConfigured is returned when no provider is configured.
	ErrProviderNotConfigured = errors.New("secrets: provider not configured")
	// ErrKeyNotFound is returned when a requested key does not exist in the secret payload.
	ErrKeyNotFound = errors.New("secrets: key not found")
)

// Provider fetches a secret payload (a flat key/value map) by path.
type Provider interface {
	Fetch(ctx context.Context, path string) (map[string]string, error)
	Name() ProviderType
}

// Manager resolves secret references through the configured provider with a
// short in-memory cache so hot paths never block on the backend.
type Manager struct {
	provider Provider
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	payload   map[string]string
	expiresAt time.Time
}

// NewManager constructs a Manager for the configured backend. A nil manager
// with ErrProviderNotConfigured is returned when SECRETS_PROVIDER is unset;
// callers then fall back to plain env configuration.
func NewManager(cfg *config.SecretsConfig) (*Manager, error) {
	var provider Provider
	var err error

	switch ProviderType(cfg.Provider) {
	case ProviderNone:
		return nil, ErrProviderNotConfigured
	case ProviderVault:
		provider, err = newVaultProvider(cfg)
	case ProviderAWS:
		provider, err = newAWSProvider(cfg)
	case ProviderGCP:
		provider, err = newGCPProvider(cfg)
	default:
		return nil, fmt.Errorf("secrets: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("secrets manager initialized", zap.String("provider", cfg.Provider))

	return &Manager{
		provider: provider,
		cacheTTL: 5 * time.Minute,
		cache:    make(map[string]cacheEntry),
	}, nil
}

// Resolve returns a single key from the secret stored at path.
func (m *Manager) Resolve(ctx context.Context, path, key string) (string, error) {
	payload, err := m.fetch(ctx, path)
	if err != nil {
		return "", err
	}
	value, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, path)
	}
	return value, nil
}

func (m *Manager) fetch(ctx context.Context, path string) (map[string]string, error) {
	m.mu.RLock()
	entry, ok := m.cache[path]
	m.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.payload, nil
	}

	payload, err := m.provider.Fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("secrets: fetch %s from %s: %w", path, m.provider.Name(), err)
	}

	m.mu.Lock()
	m.cache[path] = cacheEntry{payload: payload, expiresAt: time.Now().Add(m.cacheTTL)}
	m.mu.Unlock()

	return payload, nil
}

// Overlay resolves well-known secret paths and overwrites the corresponding
// config values when present. Missing paths are non-fatal; env values stand.
func Overlay(ctx context.Context, m *Manager, cfg *config.Config) {
	if m == nil {
		return
	}

	if v, err := m.Resolve(ctx, "payments/stripe", "api_key"); err == nil {
		cfg.Stripe.APIKey = v
	}
	if v, err := m.Resolve(ctx, "payments/stripe", "webhook_secret"); err == nil {
		cfg.Stripe.WebhookSecret = v
	}
	if v, err := m.Resolve(ctx, "notifications/twilio", "auth_token"); err == nil {
		cfg.Twilio.AuthToken = v
	}
	if v, err := m.Resolve(ctx, "notifications/smtp", "password"); err == nil {
		cfg.SMTP.Password = v
	}
}
