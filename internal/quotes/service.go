package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/internal/pricing"
	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/logger"
	"github.com/luxtransfer/booking/pkg/redis"
)

// Pricer produces a quote breakdown for a booking request.
type Pricer interface {
	Quote(ctx context.Context, req *pricing.BookingRequest) (*pricing.QuoteBreakdown, error)
}

// Store is the persistence surface the quote service needs.
type Store interface {
	Create(ctx context.Context, quote *Quote) error
	GetByID(ctx context.Context, id uuid.UUID) (*Quote, error)
	Lock(ctx context.Context, id uuid.UUID) (*Quote, error)
	Unlock(ctx context.Context, id uuid.UUID) error
	ListRecent(ctx context.Context, limit int) ([]*Quote, error)
	SweepExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// Service creates, serves, and locks quotes.
type Service struct {
	pricer Pricer
	store  Store
	cache  *redis.Client
	now    func() time.Time
}

// NewService creates a new quote service
func NewService(pricer Pricer, store Store, cache *redis.Client) *Service {
	return &Service{
		pricer: pricer,
		store:  store,
		cache:  cache,
		now:    time.Now,
	}
}

// CreateQuote prices the request and persists the resulting quote. The stored
// breakdown is immutable; a price change after creation never affects an
// existing quote.
func (s *Service) CreateQuote(ctx context.Context, req *pricing.BookingRequest) (*Quote, error) {
	breakdown, err := s.pricer.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	quote := &Quote{
		ID:         uuid.New(),
		Reference:  breakdown.BookingReference,
		Request:    *req,
		Breakdown:  *breakdown,
		ValidUntil: breakdown.ValidUntil,
	}
	if err := s.store.Create(ctx, quote); err != nil {
		return nil, common.NewInternalError("failed to store quote", err)
	}

	s.cacheQuote(ctx, quote)

	logger.WithContext(ctx).Info("quote created",
		zap.String("quote_id", quote.ID.String()),
		zap.String("reference", quote.Reference),
		zap.Float64("total", quote.Breakdown.Total),
	)
	return quote, nil
}

// GetQuote returns a quote by ID. Expired quotes are reported as gone, not
// silently repriced.
func (s *Service) GetQuote(ctx context.Context, id uuid.UUID) (*Quote, error) {
	if cached := s.cachedQuote(ctx, id); cached != nil {
		return cached, nil
	}

	quote, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.NewNotFoundError("quote not found", err)
		}
		return nil, common.NewInternalError("failed to load quote", err)
	}
	if quote.Expired(s.now()) {
		return nil, common.NewGoneError("quote has expired; request a new quote")
	}
	return quote, nil
}

// LockQuote claims the quote for a booking attempt. Exactly one concurrent
// caller succeeds; the rest see a conflict.
func (s *Service) LockQuote(ctx context.Context, id uuid.UUID) (*Quote, error) {
	quote, err := s.store.Lock(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, common.NewNotFoundError("quote not found", err)
		case errors.Is(err, ErrLockConflict):
			existing, getErr := s.store.GetByID(ctx, id)
			if getErr == nil && existing.Expired(s.now()) {
				return nil, common.NewGoneError("quote has expired; request a new quote")
			}
			return nil, common.NewConflictError("quote is already being booked", err)
		default:
			return nil, common.NewInternalError("failed to lock quote", err)
		}
	}

	// The cached copy no longer reflects the lock.
	s.dropCached(ctx, id)
	return quote, nil
}

// ReleaseQuote undoes a lock after a failed booking attempt.
func (s *Service) ReleaseQuote(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Unlock(ctx, id); err != nil {
		return common.NewInternalError("failed to release quote", err)
	}
	s.dropCached(ctx, id)
	return nil
}

// ListRecent returns the newest quotes for the admin view.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*Quote, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, common.NewInternalError("failed to list quotes", err)
	}
	return list, nil
}

// SweepExpired removes expired, unconsumed quotes. Called by the scheduler.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Info("expired quotes swept", zap.Int64("removed", removed))
	}
	return removed, nil
}

func quoteCacheKey(id uuid.UUID) string {
	return "quote:" + id.String()
}

func (s *Service) cacheQuote(ctx context.Context, quote *Quote) {
	if s.cache == nil {
		return
	}
	ttl := time.Until(quote.ValidUntil)
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := s.cache.SetWithExpiration(ctx, quoteCacheKey(quote.ID), payload, ttl); err != nil {
		logger.Warn("failed to cache quote", zap.Error(err))
	}
}

func (s *Service) cachedQuote(ctx context.Context, id uuid.UUID) *Quote {
	if s.cache == nil {
		return nil
	}
	payload, err := s.cache.GetString(ctx, quoteCacheKey(id))
	if err != nil || payload == "" {
		return nil
	}
	var quote Quote
	if err := json.Unmarshal([]byte(payload), &quote); err != nil {
		return nil
	}
	if quote.Expired(s.now()) || quote.Locked() {
		return nil
	}
	return &quote
}

func (s *Service) dropCached(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, quoteCacheKey(id)); err != nil {
		logger.Warn("failed to drop cached quote", zap.Error(err))
	}
}
