package pricing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxtransfer/booking/internal/directions"
)

// Saturday, so no peak surcharge; 09:00 keeps the default pickups clear of
// the late-night window.
var testNow = time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)

type stubDistance struct {
	miles float64
	err   error
}

func (s stubDistance) Distance(ctx context.Context, origin, destination directions.LatLng) (*directions.DistanceInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &directions.DistanceInfo{Meters: int64(math.Round(s.miles * 1609.344))}, nil
}

type stubRefs struct {
	collisions int
	calls      int
}

func (s *stubRefs) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	s.calls++
	return s.calls <= s.collisions, nil
}

func newTestEngine(t *testing.T, miles float64) *Engine {
	t.Helper()
	cfg := DefaultConfig
	engine, err := NewEngine(&cfg, stubDistance{miles: miles}, &stubRefs{}, 100)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }
	return engine
}

func oneWayRequest(miles float64, pickupAt time.Time) *BookingRequest {
	return &BookingRequest{
		ServiceType: ServiceOneWay,
		Pickup:      LocationInfo{Address: "100 Main St", Latitude: 40.71, Longitude: -74.00},
		Dropoff:     &LocationInfo{Address: "200 Oak Ave", Latitude: 40.75, Longitude: -73.98},
		PickupAt:    pickupAt,
	}
}

// assertInvariants checks the arithmetic identities every breakdown must hold.
func assertInvariants(t *testing.T, b *QuoteBreakdown) {
	t.Helper()
	sum := b.BaseRate + b.DistanceCharge + b.TimeCharges
	for _, s := range b.Surcharges {
		sum += s.Amount
	}
	for _, d := range b.Discounts {
		sum -= d.Amount
	}
	assert.InDelta(t, b.Subtotal, round2(sum), 0.001, "subtotal must equal the sum of its lines")
	assert.InDelta(t, b.Total, round2(b.Subtotal+b.Taxes.Total+b.Gratuity), 0.001, "total must equal subtotal + taxes + gratuity")
}

func TestCalculatePrice_OneWayMinimumFareFloor(t *testing.T) {
	engine := newTestEngine(t, 2)
	pickup := testNow.Add(time.Hour)

	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(2, pickup))
	require.NoError(t, err)

	// base 25 + distance 5 would be 30; the floor raises the distance
	// charge so the pair totals the 35 minimum.
	assert.Equal(t, 25.00, b.BaseRate)
	assert.Equal(t, 10.00, b.DistanceCharge)
	assert.Equal(t, 0.00, b.TimeCharges)
	assert.Empty(t, b.Surcharges)
	assert.Empty(t, b.Discounts)
	assert.Equal(t, 35.00, b.Subtotal)
	assert.Equal(t, 2.89, b.Taxes.SalesTax)
	assert.Nil(t, b.Taxes.AirportFee)
	assert.Equal(t, 7.00, b.Gratuity)
	assert.Equal(t, 44.89, b.Total)
	assertInvariants(t, b)
}

func TestCalculatePrice_OneWayStandard(t *testing.T) {
	engine := newTestEngine(t, 20)
	pickup := testNow.Add(time.Hour)

	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, pickup))
	require.NoError(t, err)

	assert.Equal(t, 25.00, b.BaseRate)
	assert.Equal(t, 50.00, b.DistanceCharge)
	assert.Equal(t, 75.00, b.Subtotal)
	assert.Equal(t, 6.19, b.Taxes.SalesTax)
	assert.Equal(t, 15.00, b.Gratuity)
	assert.Equal(t, 96.19, b.Total)
	assertInvariants(t, b)
}

func TestCalculatePrice_AirportSurchargeAndFee(t *testing.T) {
	engine := newTestEngine(t, 20)
	req := oneWayRequest(20, testNow.Add(time.Hour))
	req.Pickup.IsAirport = true

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, b.Surcharges, 1)
	assert.Equal(t, SurchargeAirport, b.Surcharges[0].Type)
	assert.Equal(t, 15.00, b.Surcharges[0].Amount)
	assert.Equal(t, 90.00, b.Subtotal)

	// The airport fee rides on the airport surcharge condition.
	require.NotNil(t, b.Taxes.AirportFee)
	assert.Equal(t, 3.60, *b.Taxes.AirportFee)
	assert.Equal(t, 7.43, b.Taxes.SalesTax)
	assert.Equal(t, 11.03, b.Taxes.Total)
	assert.Equal(t, 119.03, b.Total)
	assertInvariants(t, b)
}

func TestCalculatePrice_LateNightBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		hour     int
		minute   int
		expected bool
	}{
		{name: "21:59 is not late night", hour: 21, minute: 59, expected: false},
		{name: "22:00 starts late night", hour: 22, minute: 0, expected: true},
		{name: "05:59 is still late night", hour: 5, minute: 59, expected: true},
		{name: "06:00 ends late night", hour: 6, minute: 0, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, 20)
			pickup := time.Date(2025, 6, 8, tt.hour, tt.minute, 0, 0, time.UTC) // Sunday
			b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, pickup))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, hasSurcharge(b, SurchargeLateNight))
			assertInvariants(t, b)
		})
	}
}

func TestCalculatePrice_PeakHours(t *testing.T) {
	tests := []struct {
		name     string
		pickup   time.Time
		expected bool
	}{
		{name: "weekday morning peak", pickup: time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC), expected: true},
		{name: "weekday evening peak", pickup: time.Date(2025, 6, 9, 17, 30, 0, 0, time.UTC), expected: true},
		{name: "weekday midday off peak", pickup: time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC), expected: false},
		{name: "weekday 09:00 just past morning peak", pickup: time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC), expected: false},
		{name: "saturday morning is not peak", pickup: time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, 20)
			b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, tt.pickup))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, hasSurcharge(b, SurchargePeakHours))
		})
	}
}

func TestCalculatePrice_HolidaySurcharge(t *testing.T) {
	cfg := DefaultConfig
	cfg.Surcharges.HolidayDates = []string{"2025-07-04"}
	engine, err := NewEngine(&cfg, stubDistance{miles: 20}, &stubRefs{}, 100)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }

	pickup := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC) // Friday, midday
	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, pickup))
	require.NoError(t, err)
	assert.True(t, hasSurcharge(b, SurchargeHoliday))

	// Multiple surcharges stack independently.
	pickup = time.Date(2025, 7, 4, 8, 0, 0, 0, time.UTC)
	b, err = engine.CalculatePrice(context.Background(), oneWayRequest(20, pickup))
	require.NoError(t, err)
	assert.True(t, hasSurcharge(b, SurchargeHoliday))
	assert.True(t, hasSurcharge(b, SurchargePeakHours))
	assertInvariants(t, b)
}

func TestCalculatePrice_RoundtripSameDay(t *testing.T) {
	engine := newTestEngine(t, 10)
	pickup := testNow.Add(time.Hour)           // Sat 10:00
	returnAt := pickup.Add(6 * time.Hour)      // Sat 16:00, 4 chargeable wait hours
	req := &BookingRequest{
		ServiceType: ServiceRoundtrip,
		Pickup:      LocationInfo{Address: "100 Main St", Latitude: 40.71, Longitude: -74.00},
		Dropoff:     &LocationInfo{Address: "200 Oak Ave", Latitude: 40.75, Longitude: -73.98},
		PickupAt:    pickup,
		ReturnAt:    &returnAt,
	}

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 45.00, b.BaseRate)       // 25 x 1.8
	assert.Equal(t, 45.00, b.DistanceCharge) // 25 x 1.8
	assert.Equal(t, 180.00, b.TimeCharges)   // (6 - 2) x 45

	require.Len(t, b.Discounts, 1)
	assert.Equal(t, DiscountSameDayReturn, b.Discounts[0].Type)
	assert.Equal(t, 9.00, b.Discounts[0].Amount) // 10% of scaled base + distance

	assert.Equal(t, 261.00, b.Subtotal)
	assert.Equal(t, 21.53, b.Taxes.SalesTax)
	assert.Equal(t, 52.20, b.Gratuity)
	assert.Equal(t, 334.73, b.Total)
	assertInvariants(t, b)
}

func TestCalculatePrice_RoundtripFloorsBeforeScaling(t *testing.T) {
	engine := newTestEngine(t, 2)
	pickup := testNow.Add(time.Hour)
	returnAt := pickup.Add(24 * time.Hour)
	req := &BookingRequest{
		ServiceType: ServiceRoundtrip,
		Pickup:      LocationInfo{Address: "100 Main St", Latitude: 40.71, Longitude: -74.00},
		Dropoff:     &LocationInfo{Address: "200 Oak Ave", Latitude: 40.75, Longitude: -73.98},
		PickupAt:    pickup,
		ReturnAt:    &returnAt,
	}

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	// The minimum-fare floor applies to the one-way leg first, then the
	// floored amount is scaled: 35 x 1.8 = 63 split across base + distance.
	assert.Equal(t, 45.00, b.BaseRate)
	assert.Equal(t, 18.00, b.DistanceCharge)
	assert.Equal(t, 990.00, b.TimeCharges) // (24 - 2) x 45
	assert.Empty(t, b.Discounts, "next-day return earns no same-day discount")
	assertInvariants(t, b)
}

func TestCalculatePrice_RoundtripIncludedWaitIsFree(t *testing.T) {
	engine := newTestEngine(t, 10)
	pickup := testNow.Add(time.Hour)
	returnAt := pickup.Add(2 * time.Hour)
	req := &BookingRequest{
		ServiceType: ServiceRoundtrip,
		Pickup:      LocationInfo{Address: "100 Main St", Latitude: 40.71, Longitude: -74.00},
		Dropoff:     &LocationInfo{Address: "200 Oak Ave", Latitude: 40.75, Longitude: -73.98},
		PickupAt:    pickup,
		ReturnAt:    &returnAt,
	}

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0.00, b.TimeCharges)
	assert.True(t, len(b.Discounts) == 1 && b.Discounts[0].Type == DiscountSameDayReturn)
}

func TestCalculatePrice_HourlyWithOvertime(t *testing.T) {
	engine := newTestEngine(t, 0)
	req := &BookingRequest{
		ServiceType:   ServiceHourly,
		Pickup:        LocationInfo{Address: "100 Main St", Latitude: 40.71, Longitude: -74.00},
		PickupAt:      testNow.Add(time.Hour),
		DurationHours: 10,
	}

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	// 8 hours at 75 plus 2 overtime hours at 90.
	assert.Equal(t, 780.00, b.BaseRate)
	assert.Equal(t, 0.00, b.DistanceCharge)
	assert.Equal(t, 780.00, b.Subtotal)
	assertInvariants(t, b)
}

func TestCalculatePrice_HourlyExcessMileage(t *testing.T) {
	engine := newTestEngine(t, 170)
	req := &BookingRequest{
		ServiceType:   ServiceHourly,
		Pickup:        LocationInfo{Address: "100 Main St", Latitude: 40.71, Longitude: -74.00},
		Dropoff:       &LocationInfo{Address: "200 Oak Ave", Latitude: 40.75, Longitude: -73.98},
		PickupAt:      testNow.Add(time.Hour),
		DurationHours: 10,
	}

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	// 170 miles against 150 included: 20 excess at 2.00.
	assert.Equal(t, 40.00, b.DistanceCharge)
	assertInvariants(t, b)
}

func TestCalculatePrice_HourlyMinimumDuration(t *testing.T) {
	engine := newTestEngine(t, 0)
	req := &BookingRequest{
		ServiceType:   ServiceHourly,
		Pickup:        LocationInfo{Address: "100 Main St", Latitude: 40.71, Longitude: -74.00},
		PickupAt:      testNow.Add(time.Hour),
		DurationHours: 3.5,
	}

	_, err := engine.CalculatePrice(context.Background(), req)
	require.Error(t, err)

	req.DurationHours = 4
	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 300.00, b.BaseRate)
}

func TestCalculatePrice_CorporateExcludesLoyalty(t *testing.T) {
	engine := newTestEngine(t, 20)
	req := oneWayRequest(20, testNow.Add(time.Hour))
	req.CorporateAccount = true
	req.ReturningCustomer = true

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, b.Discounts, 1)
	assert.Equal(t, DiscountCorporate, b.Discounts[0].Type)
	assert.Equal(t, 11.25, b.Discounts[0].Amount) // 15% of 75
	assertInvariants(t, b)
}

func TestCalculatePrice_LoyaltyWhenNotCorporate(t *testing.T) {
	engine := newTestEngine(t, 20)
	req := oneWayRequest(20, testNow.Add(time.Hour))
	req.ReturningCustomer = true

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, b.Discounts, 1)
	assert.Equal(t, DiscountLoyalty, b.Discounts[0].Type)
	assert.Equal(t, 7.50, b.Discounts[0].Amount) // 10% of 75
}

func TestCalculatePrice_AdvanceBookingBoundary(t *testing.T) {
	tests := []struct {
		name     string
		lead     time.Duration
		expected bool
	}{
		{name: "exactly 48 hours qualifies", lead: 48 * time.Hour, expected: true},
		{name: "just under 48 hours does not", lead: 48*time.Hour - time.Minute, expected: false},
		{name: "72 hours qualifies", lead: 72 * time.Hour, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(t, 20)
			b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, testNow.Add(tt.lead)))
			require.NoError(t, err)

			found := false
			for _, d := range b.Discounts {
				if d.Type == DiscountAdvanceBooking {
					found = true
				}
			}
			assert.Equal(t, tt.expected, found)
		})
	}
}

func TestCalculatePrice_CorporateAndAdvanceStack(t *testing.T) {
	engine := newTestEngine(t, 20)
	req := oneWayRequest(20, testNow.Add(72*time.Hour)) // Tuesday 09:00, off peak
	req.CorporateAccount = true

	b, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, b.Discounts, 2)
	assert.Equal(t, DiscountCorporate, b.Discounts[0].Type)
	assert.Equal(t, DiscountAdvanceBooking, b.Discounts[1].Type)
	assert.Equal(t, 11.25, b.Discounts[0].Amount)
	assert.Equal(t, 3.75, b.Discounts[1].Amount) // 5% of 75
	assertInvariants(t, b)
}

func TestCalculatePrice_Deterministic(t *testing.T) {
	engine := newTestEngine(t, 20)
	req := oneWayRequest(20, testNow.Add(time.Hour))

	first, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.CalculatePrice(context.Background(), req)
	require.NoError(t, err)

	// Only the booking reference differs between identical requests.
	assert.NotEqual(t, first.BookingReference, second.BookingReference)
	first.BookingReference = ""
	second.BookingReference = ""
	assert.Equal(t, first, second)
}

func TestCalculatePrice_DistanceLookupFailureProducesNoQuote(t *testing.T) {
	cfg := DefaultConfig
	engine, err := NewEngine(&cfg, stubDistance{err: errors.New("upstream timeout")}, &stubRefs{}, 100)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }

	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, testNow.Add(time.Hour)))
	require.Error(t, err)
	assert.Nil(t, b)
}

func TestCalculatePrice_MaxDistanceExceeded(t *testing.T) {
	engine := newTestEngine(t, 250)

	_, err := engine.CalculatePrice(context.Background(), oneWayRequest(250, testNow.Add(time.Hour)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "200 miles")
}

func TestCalculatePrice_ExtendedTripWarning(t *testing.T) {
	engine := newTestEngine(t, 150)

	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(150, testNow.Add(time.Hour)))
	require.NoError(t, err)
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], "dispatcher confirmation")
}

func TestCalculatePrice_ValidationErrors(t *testing.T) {
	engine := newTestEngine(t, 20)
	pickup := testNow.Add(time.Hour)
	earlier := pickup.Add(-time.Hour)

	tests := []struct {
		name string
		req  *BookingRequest
	}{
		{
			name: "unknown service type",
			req: &BookingRequest{
				ServiceType: "LUXURY",
				Pickup:      LocationInfo{Address: "100 Main St"},
				PickupAt:    pickup,
			},
		},
		{
			name: "one-way without dropoff",
			req: &BookingRequest{
				ServiceType: ServiceOneWay,
				Pickup:      LocationInfo{Address: "100 Main St"},
				PickupAt:    pickup,
			},
		},
		{
			name: "roundtrip without return time",
			req: &BookingRequest{
				ServiceType: ServiceRoundtrip,
				Pickup:      LocationInfo{Address: "100 Main St"},
				Dropoff:     &LocationInfo{Address: "200 Oak Ave"},
				PickupAt:    pickup,
			},
		},
		{
			name: "roundtrip return before pickup",
			req: &BookingRequest{
				ServiceType: ServiceRoundtrip,
				Pickup:      LocationInfo{Address: "100 Main St"},
				Dropoff:     &LocationInfo{Address: "200 Oak Ave"},
				PickupAt:    pickup,
				ReturnAt:    &earlier,
			},
		},
		{
			name: "missing pickup time",
			req: &BookingRequest{
				ServiceType: ServiceOneWay,
				Pickup:      LocationInfo{Address: "100 Main St"},
				Dropoff:     &LocationInfo{Address: "200 Oak Ave"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.CalculatePrice(context.Background(), tt.req)
			require.Error(t, err)
		})
	}
}

func TestCalculatePrice_QuoteValidityWindow(t *testing.T) {
	engine := newTestEngine(t, 20)

	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, testNow.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(30*time.Minute), b.ValidUntil)
}

func TestGenerateReference_RetriesOnCollision(t *testing.T) {
	cfg := DefaultConfig
	refs := &stubRefs{collisions: 2}
	engine, err := NewEngine(&cfg, stubDistance{miles: 20}, refs, 100)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }

	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, testNow.Add(time.Hour)))
	require.NoError(t, err)
	assert.Len(t, b.BookingReference, 8)
	assert.Equal(t, 3, refs.calls)
}

func TestGenerateReference_ExhaustsRetries(t *testing.T) {
	cfg := DefaultConfig
	engine, err := NewEngine(&cfg, stubDistance{miles: 20}, &stubRefs{collisions: 100}, 100)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }

	_, err = engine.CalculatePrice(context.Background(), oneWayRequest(20, testNow.Add(time.Hour)))
	require.Error(t, err)
}

func TestEngine_ReloadSwapsConfig(t *testing.T) {
	engine := newTestEngine(t, 20)

	updated := DefaultConfig
	updated.Version = 2
	updated.OneWay.BaseRate = 30.00
	require.NoError(t, engine.Reload(&updated))

	b, err := engine.CalculatePrice(context.Background(), oneWayRequest(20, testNow.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 30.00, b.BaseRate)
	assert.Equal(t, 2, engine.ActiveConfig().Version)
}

func TestEngine_ReloadRejectsInvalidConfig(t *testing.T) {
	engine := newTestEngine(t, 20)

	bad := DefaultConfig
	bad.OneWay.PerMileRate = 0
	require.Error(t, engine.Reload(&bad))
	assert.Equal(t, 1, engine.ActiveConfig().Version, "invalid reload must not replace the active config")
}
