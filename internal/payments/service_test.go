package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxtransfer/booking/pkg/common"
)

// memStore enforces the same single-in-flight-charge guarantee the partial
// unique index provides in Postgres.
type memStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*Payment
	events   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		payments: make(map[uuid.UUID]*Payment),
		events:   make(map[string]bool),
	}
}

func (m *memStore) CreatePending(_ context.Context, payment *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.BookingID == payment.BookingID && p.Status.InFlight() {
			return ErrChargeInFlight
		}
	}
	cp := *payment
	m.payments[payment.ID] = &cp
	return nil
}

func (m *memStore) GetInFlightByBookingID(_ context.Context, bookingID uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.BookingID == bookingID && p.Status.InFlight() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetSucceededByBookingID(_ context.Context, bookingID uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.BookingID == bookingID && (p.Status == StatusSucceeded || p.Status == StatusRefundProcessing) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetByProviderID(_ context.Context, providerID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ProviderPaymentID != nil && *p.ProviderPaymentID == providerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) AttachProvider(_ context.Context, id uuid.UUID, providerID string, status PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.ProviderPaymentID = &providerID
	p.Status = status
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = StatusFailed
	p.FailureReason = &reason
	return nil
}

func (m *memStore) RecordEvent(_ context.Context, eventID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[eventID] {
		return ErrEventSeen
	}
	m.events[eventID] = true
	return nil
}

func (m *memStore) ListStaleInFlight(_ context.Context, olderThan time.Time) ([]*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*Payment
	for _, p := range m.payments {
		if p.Status.InFlight() && p.ProviderPaymentID != nil && p.UpdatedAt.Before(olderThan) {
			cp := *p
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

func (m *memStore) byBooking(bookingID uuid.UUID) []*Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// fakeGateway honors idempotency keys the way Stripe does: a repeated key
// replays the original charge.
type fakeGateway struct {
	mu           sync.Mutex
	charges      map[string]*Charge // by idempotency key
	refunds      []Refund
	createCalls  int
	failuresLeft int
	failAlways   bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{charges: make(map[string]*Charge)}
}

func (g *fakeGateway) CreateCharge(_ context.Context, params ChargeParams) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.failAlways {
		return nil, errors.New("gateway unavailable")
	}
	if g.failuresLeft > 0 {
		g.failuresLeft--
		return nil, errors.New("connection reset")
	}
	if existing, ok := g.charges[params.IdempotencyKey]; ok {
		cp := *existing
		return &cp, nil
	}
	charge := &Charge{
		ProviderID:  "pi_" + uuid.NewString()[:8],
		Status:      ChargeProcessing,
		AmountCents: params.AmountCents,
	}
	g.charges[params.IdempotencyKey] = charge
	cp := *charge
	return &cp, nil
}

func (g *fakeGateway) RetrieveCharge(_ context.Context, providerID string) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.charges {
		if c.ProviderID == providerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.New("no such charge")
}

func (g *fakeGateway) CreateRefund(_ context.Context, providerChargeID string, amountCents int64, _ map[string]string) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAlways {
		return nil, errors.New("gateway unavailable")
	}
	refund := Refund{ProviderID: "re_" + uuid.NewString()[:8], Status: "pending"}
	g.refunds = append(g.refunds, refund)
	return &refund, nil
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

func TestInitiateCharge(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()

	store := newMemStore()
	gateway := newFakeGateway()
	svc := NewService(store, gateway)

	err := svc.InitiateCharge(ctx, bookingID, 125.50, "guest@example.com")
	require.NoError(t, err)

	recorded := store.byBooking(bookingID)
	require.Len(t, recorded, 1)
	assert.Equal(t, int64(12550), recorded[0].AmountCents)
	assert.Equal(t, StatusProcessing, recorded[0].Status)
	require.NotNil(t, recorded[0].ProviderPaymentID)
	assert.Equal(t, IdempotencyKey(bookingID, 12550), recorded[0].IdempotencyKey)
}

func TestInitiateChargeRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(newMemStore(), newFakeGateway())

	err := svc.InitiateCharge(context.Background(), uuid.New(), 0, "guest@example.com")

	require.Error(t, err)
	assert.Equal(t, 400, common.AsAppError(err).Code)
}

func TestInitiateChargeConcurrentCallsCreateOneCharge(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()

	store := newMemStore()
	gateway := newFakeGateway()
	svc := NewService(store, gateway)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.InitiateCharge(ctx, bookingID, 200.00, "guest@example.com")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, gateway.chargeCount(), "exactly one gateway charge")
	assert.Len(t, store.byBooking(bookingID), 1, "exactly one payment record")
}

func TestInitiateChargeRetriesAmbiguousFailureWithSameKey(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()

	store := newMemStore()
	gateway := newFakeGateway()
	gateway.failuresLeft = 1
	svc := NewService(store, gateway)

	err := svc.InitiateCharge(ctx, bookingID, 99.00, "guest@example.com")
	require.NoError(t, err)

	assert.Equal(t, 2, gateway.createCalls)
	assert.Equal(t, 1, gateway.chargeCount(), "retry converged on one charge")
}

func TestInitiateChargeGatewayDownMarksFailed(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()

	store := newMemStore()
	gateway := newFakeGateway()
	gateway.failAlways = true
	svc := NewService(store, gateway)

	err := svc.InitiateCharge(ctx, bookingID, 75.00, "guest@example.com")

	require.Error(t, err)
	assert.Equal(t, 502, common.AsAppError(err).Code)

	recorded := store.byBooking(bookingID)
	require.Len(t, recorded, 1)
	assert.Equal(t, StatusFailed, recorded[0].Status)
	require.NotNil(t, recorded[0].FailureReason)
}

func TestIssueRefund(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()

	store := newMemStore()
	gateway := newFakeGateway()
	svc := NewService(store, gateway)

	providerID := "pi_settled"
	paymentID := uuid.New()
	store.payments[paymentID] = &Payment{
		ID:                paymentID,
		BookingID:         bookingID,
		AmountCents:       15000,
		Status:            StatusSucceeded,
		ProviderPaymentID: &providerID,
	}

	err := svc.IssueRefund(ctx, bookingID, 120.00)
	require.NoError(t, err)

	require.Len(t, gateway.refunds, 1)
	p, err := store.GetByProviderID(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefundProcessing, p.Status)
}

func TestIssueRefundWithoutSettledPayment(t *testing.T) {
	svc := NewService(newMemStore(), newFakeGateway())

	err := svc.IssueRefund(context.Background(), uuid.New(), 50.00)

	require.Error(t, err)
	assert.Equal(t, 404, common.AsAppError(err).Code)
}

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	bookingID := uuid.New()
	assert.Equal(t, IdempotencyKey(bookingID, 12550), IdempotencyKey(bookingID, 12550))
	assert.NotEqual(t, IdempotencyKey(bookingID, 12550), IdempotencyKey(bookingID, 12551))
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(12550), ToCents(125.50))
	assert.Equal(t, int64(10), ToCents(0.1))
	assert.Equal(t, int64(3), ToCents(0.029999))
}

// stubDeduper allows everything through unless primed otherwise.
type stubDeduper struct {
	mu     sync.Mutex
	seen   map[string]bool
	down   bool
	ttlGot time.Duration
}

func (d *stubDeduper) ClaimOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ttlGot = ttl
	if d.down {
		return false, errors.New("redis unavailable")
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}
