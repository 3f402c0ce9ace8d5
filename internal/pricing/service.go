package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/logger"
)

// ConfigStore is the persistence surface the pricing service needs.
type ConfigStore interface {
	CreateVersion(ctx context.Context, cfg *Config) error
	GetActiveAt(ctx context.Context, at time.Time) (*Config, error)
	GetByVersion(ctx context.Context, version int) (*Config, error)
	ListVersions(ctx context.Context) ([]*Config, error)
}

// Service manages pricing config versions and keeps the engine's snapshot in
// sync with the currently effective version.
type Service struct {
	store  ConfigStore
	engine *Engine
}

// NewService creates a new pricing service
func NewService(store ConfigStore, engine *Engine) *Service {
	return &Service{store: store, engine: engine}
}

// Quote runs the pricing engine for a booking request.
func (s *Service) Quote(ctx context.Context, req *BookingRequest) (*QuoteBreakdown, error) {
	return s.engine.CalculatePrice(ctx, req)
}

// CreateVersion validates and persists a new config version. When the new
// version is effective immediately it is also hot-swapped into the engine.
func (s *Service) CreateVersion(ctx context.Context, cfg *Config) (*Config, error) {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.EffectiveFrom.IsZero() {
		cfg.EffectiveFrom = time.Now().UTC()
	}

	if err := cfg.Validate(); err != nil {
		return nil, common.NewBadRequestError(err.Error(), err)
	}

	if err := s.store.CreateVersion(ctx, cfg); err != nil {
		if errors.Is(err, ErrOverlappingConfigs) {
			return nil, common.NewConflictError("effective window overlaps an existing pricing config version", err)
		}
		return nil, common.NewInternalError("failed to create pricing config version", err)
	}

	if cfg.ActiveAt(time.Now()) {
		if err := s.engine.Reload(cfg); err != nil {
			return nil, common.NewInternalError("failed to activate pricing config version", err)
		}
	}

	logger.Info("pricing config version created",
		zap.Int("version", cfg.Version),
		zap.Time("effective_from", cfg.EffectiveFrom),
	)
	return cfg, nil
}

// ActiveVersion returns the version currently used by the engine.
func (s *Service) ActiveVersion(ctx context.Context) (*Config, error) {
	return s.engine.ActiveConfig(), nil
}

// GetVersion returns a stored config version by number.
func (s *Service) GetVersion(ctx context.Context, version int) (*Config, error) {
	cfg, err := s.store.GetByVersion(ctx, version)
	if err != nil {
		if errors.Is(err, ErrNoActiveConfig) {
			return nil, common.NewNotFoundError("pricing config version not found", err)
		}
		return nil, common.NewInternalError("failed to load pricing config version", err)
	}
	return cfg, nil
}

// ListVersions returns all stored config versions, newest first.
func (s *Service) ListVersions(ctx context.Context) ([]*Config, error) {
	versions, err := s.store.ListVersions(ctx)
	if err != nil {
		return nil, common.NewInternalError("failed to list pricing config versions", err)
	}
	return versions, nil
}

// RefreshActive re-reads the currently effective version from the store and
// swaps it into the engine. The scheduler calls this so versions that become
// effective later activate on time without a restart.
func (s *Service) RefreshActive(ctx context.Context) error {
	cfg, err := s.store.GetActiveAt(ctx, time.Now())
	if err != nil {
		if errors.Is(err, ErrNoActiveConfig) {
			return common.NewInternalError("no pricing config version is active", err)
		}
		return common.NewInternalError("failed to load active pricing config version", err)
	}

	current := s.engine.ActiveConfig()
	if current != nil && current.Version == cfg.Version {
		return nil
	}
	return s.engine.Reload(cfg)
}
