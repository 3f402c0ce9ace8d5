package pricing

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luxtransfer/booking/internal/directions"
	"github.com/luxtransfer/booking/pkg/common"
	"github.com/luxtransfer/booking/pkg/logger"
	"github.com/luxtransfer/booking/pkg/validation"
)

// Quote validity and advance-booking windows.
const (
	quoteValidity      = 30 * time.Minute
	advanceBookingLead = 48 * time.Hour
	roundtripFreeWait  = 2.0 // hours of included wait before wait charges start
)

// Late-night window is [22:00, 06:00), wrapping midnight. Peak windows are
// morning [7,9) and evening [17,19) on configured weekdays.
const (
	lateNightStartHour = 22
	lateNightEndHour   = 6
	peakMorningStart   = 7
	peakMorningEnd     = 9
	peakEveningStart   = 17
	peakEveningEnd     = 19
)

// ReferenceChecker reports whether a booking reference is already in use.
// The quote store implements this against its unique reference column.
type ReferenceChecker interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// Engine is the deterministic quote calculator. It holds an immutable config
// snapshot swapped atomically on reload, so no calculation ever observes a
// half-updated rate table.
type Engine struct {
	config    atomic.Pointer[Config]
	distance  directions.Provider
	refs      ReferenceChecker
	softLimit float64 // miles beyond which a one-way quote carries an advisory
	now       func() time.Time
}

// NewEngine creates an engine with an initial config snapshot.
func NewEngine(cfg *Config, distance directions.Provider, refs ReferenceChecker, extendedTripMiles float64) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		distance:  distance,
		refs:      refs,
		softLimit: extendedTripMiles,
		now:       time.Now,
	}
	e.config.Store(cfg)
	return e, nil
}

// Reload swaps in a new config snapshot. The swap is atomic from the
// caller's perspective.
func (e *Engine) Reload(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.config.Store(cfg)
	logger.Info("pricing config reloaded",
		zap.Int("version", cfg.Version),
		zap.Time("effective_from", cfg.EffectiveFrom),
	)
	return nil
}

// ActiveConfig returns the current config snapshot.
func (e *Engine) ActiveConfig() *Config {
	return e.config.Load()
}

// CalculatePrice produces a fully itemized quote breakdown for the request.
// Validation fails fast; no partial computation is performed.
func (e *Engine) CalculatePrice(ctx context.Context, req *BookingRequest) (*QuoteBreakdown, error) {
	cfg := e.config.Load()

	if err := validateRequest(req, cfg); err != nil {
		return nil, err
	}

	dist, err := e.lookupDistance(ctx, req)
	if err != nil {
		// Fail closed: no quote is produced when the lookup fails.
		return nil, err
	}

	miles := 0.0
	if dist != nil {
		miles = dist.Miles()
	}

	if req.ServiceType == ServiceOneWay && miles > cfg.OneWay.MaxDistanceMiles {
		return nil, common.NewBadRequestError(
			fmt.Sprintf("one-way trips are limited to %.0f miles (requested %.1f)",
				cfg.OneWay.MaxDistanceMiles, miles), nil)
	}

	breakdown := &QuoteBreakdown{
		Surcharges: []Surcharge{},
		Discounts:  []Discount{},
	}

	switch req.ServiceType {
	case ServiceOneWay:
		e.priceOneWay(breakdown, cfg, miles)
	case ServiceRoundtrip:
		e.priceRoundtrip(breakdown, cfg, req, miles)
	case ServiceHourly:
		e.priceHourly(breakdown, cfg, req, miles)
	}

	e.applySurcharges(breakdown, cfg, req)
	e.applyDiscounts(breakdown, cfg, req)

	subtotal := breakdown.BaseRate + breakdown.DistanceCharge + breakdown.TimeCharges
	for _, s := range breakdown.Surcharges {
		subtotal += s.Amount
	}
	for _, d := range breakdown.Discounts {
		subtotal -= d.Amount
	}
	breakdown.Subtotal = round2(subtotal)

	salesTax := round2(breakdown.Subtotal * cfg.Taxes.SalesTaxRate)
	breakdown.Taxes = Taxes{SalesTax: salesTax, Total: salesTax}
	if hasSurcharge(breakdown, SurchargeAirport) {
		fee := round2(breakdown.Subtotal * cfg.Taxes.AirportFeeRate)
		breakdown.Taxes.AirportFee = &fee
		breakdown.Taxes.Total = round2(salesTax + fee)
	}

	breakdown.Gratuity = round2(breakdown.Subtotal * cfg.GratuityRate)
	breakdown.Total = round2(breakdown.Subtotal + breakdown.Taxes.Total + breakdown.Gratuity)
	breakdown.ValidUntil = e.now().Add(quoteValidity)

	reference, err := e.generateReference(ctx)
	if err != nil {
		return nil, err
	}
	breakdown.BookingReference = reference

	if req.ServiceType == ServiceOneWay && e.softLimit > 0 && miles > e.softLimit {
		breakdown.Warnings = append(breakdown.Warnings, fmt.Sprintf(
			"trip distance %.1f miles exceeds %.0f miles; extended trips may require dispatcher confirmation",
			miles, e.softLimit))
	}

	return breakdown, nil
}

func validateRequest(req *BookingRequest, cfg *Config) error {
	if !req.ServiceType.Valid() {
		return validation.NewFieldError("service_type", "must be ONE_WAY, ROUNDTRIP, or HOURLY")
	}
	if req.Pickup.Address == "" {
		return validation.NewFieldError("pickup", "pickup location is required")
	}
	if req.PickupAt.IsZero() {
		return validation.NewFieldError("pickup_at", "pickup datetime is required")
	}

	switch req.ServiceType {
	case ServiceOneWay, ServiceRoundtrip:
		if req.Dropoff == nil || req.Dropoff.Address == "" {
			return validation.NewFieldError("dropoff", "dropoff location is required")
		}
	}

	if req.ServiceType == ServiceRoundtrip {
		if req.ReturnAt == nil {
			return validation.NewFieldError("return_at", "return datetime is required for roundtrips")
		}
		if !req.ReturnAt.After(req.PickupAt) {
			return validation.NewFieldError("return_at", "return datetime must be after pickup")
		}
	}

	if req.ServiceType == ServiceHourly && req.DurationHours < cfg.Hourly.MinimumHours {
		return validation.NewFieldError("duration_hours",
			fmt.Sprintf("hourly bookings require at least %.0f hours", cfg.Hourly.MinimumHours))
	}

	return nil
}

// lookupDistance performs the single distance lookup a quote needs. Hourly
// trips without a dropoff skip the lookup; their mileage allowance covers
// local driving.
func (e *Engine) lookupDistance(ctx context.Context, req *BookingRequest) (*directions.DistanceInfo, error) {
	if req.Dropoff == nil {
		return nil, nil
	}
	origin := directions.LatLng{Latitude: req.Pickup.Latitude, Longitude: req.Pickup.Longitude}
	dest := directions.LatLng{Latitude: req.Dropoff.Latitude, Longitude: req.Dropoff.Longitude}
	return e.distance.Distance(ctx, origin, dest)
}

// priceOneWay floors base + distance at the minimum fare by raising the
// distance charge, keeping the line-item arithmetic exact.
func (e *Engine) priceOneWay(b *QuoteBreakdown, cfg *Config, miles float64) {
	b.BaseRate = round2(cfg.OneWay.BaseRate)
	distanceCharge := round2(miles * cfg.OneWay.PerMileRate)
	if b.BaseRate+distanceCharge < cfg.OneWay.MinimumFare {
		distanceCharge = round2(cfg.OneWay.MinimumFare - b.BaseRate)
	}
	b.DistanceCharge = distanceCharge
}

// priceRoundtrip applies the one-way calculation (including the minimum-fare
// floor), scales it by the roundtrip multiplier, charges wait time beyond the
// included window, and records the same-day discount as a named line off the
// pre-surcharge scaled base + distance. The ordering — discount before
// surcharges, tax after both — is deliberate; reordering changes totals.
func (e *Engine) priceRoundtrip(b *QuoteBreakdown, cfg *Config, req *BookingRequest, miles float64) {
	base := cfg.OneWay.BaseRate
	distanceCharge := miles * cfg.OneWay.PerMileRate
	if base+distanceCharge < cfg.OneWay.MinimumFare {
		distanceCharge = cfg.OneWay.MinimumFare - base
	}

	b.BaseRate = round2(base * cfg.Roundtrip.Multiplier)
	b.DistanceCharge = round2(distanceCharge * cfg.Roundtrip.Multiplier)

	waitHours := req.ReturnAt.Sub(req.PickupAt).Hours()
	if waitHours > roundtripFreeWait {
		b.TimeCharges = round2((waitHours - roundtripFreeWait) * cfg.Roundtrip.WaitTimeHourlyRate)
	}

	if sameCalendarDay(req.PickupAt, *req.ReturnAt) {
		amount := round2((b.BaseRate + b.DistanceCharge) * cfg.Roundtrip.SameDayDiscountRate)
		b.Discounts = append(b.Discounts, Discount{
			Type:       DiscountSameDayReturn,
			Name:       "Same-day return discount",
			Amount:     amount,
			Percentage: cfg.Roundtrip.SameDayDiscountRate * 100,
		})
	}
}

// priceHourly bills the first block of hours at the base hourly rate and the
// remainder at the overtime rate; mileage beyond the hourly allowance is
// billed per excess mile.
func (e *Engine) priceHourly(b *QuoteBreakdown, cfg *Config, req *BookingRequest, miles float64) {
	hours := req.DurationHours
	threshold := cfg.Hourly.OvertimeThresholdHours

	standard := math.Min(hours, threshold)
	overtime := math.Max(0, hours-threshold)
	b.BaseRate = round2(standard*cfg.Hourly.BaseHourlyRate + overtime*cfg.Hourly.OvertimeRate)

	included := hours * cfg.Hourly.IncludedMilesPerHour
	if miles > included {
		b.DistanceCharge = round2((miles - included) * cfg.Hourly.ExcessMileRate)
	}
}

// applySurcharges evaluates each surcharge independently; any subset may
// apply and each applied one is a named line item.
func (e *Engine) applySurcharges(b *QuoteBreakdown, cfg *Config, req *BookingRequest) {
	if req.Pickup.IsAirport || (req.Dropoff != nil && req.Dropoff.IsAirport) {
		b.Surcharges = append(b.Surcharges, Surcharge{
			Type: SurchargeAirport, Name: "Airport pickup/dropoff", Amount: round2(cfg.Surcharges.Airport),
		})
	}

	hour := req.PickupAt.Hour()
	if hour >= lateNightStartHour || hour < lateNightEndHour {
		b.Surcharges = append(b.Surcharges, Surcharge{
			Type: SurchargeLateNight, Name: "Late night service", Amount: round2(cfg.Surcharges.LateNight),
		})
	}

	if cfg.IsHoliday(req.PickupAt) {
		b.Surcharges = append(b.Surcharges, Surcharge{
			Type: SurchargeHoliday, Name: "Holiday service", Amount: round2(cfg.Surcharges.Holiday),
		})
	}

	if cfg.IsPeakWeekday(req.PickupAt) && inPeakWindow(hour) {
		b.Surcharges = append(b.Surcharges, Surcharge{
			Type: SurchargePeakHours, Name: "Peak hours", Amount: round2(cfg.Surcharges.PeakHours),
		})
	}
}

// applyDiscounts evaluates percentage discounts against the pre-surcharge
// basis. Corporate and loyalty are mutually exclusive; loyalty applies only
// when corporate does not.
func (e *Engine) applyDiscounts(b *QuoteBreakdown, cfg *Config, req *BookingRequest) {
	basis := b.BaseRate + b.DistanceCharge + b.TimeCharges

	if req.CorporateAccount {
		b.Discounts = append(b.Discounts, Discount{
			Type:       DiscountCorporate,
			Name:       "Corporate account discount",
			Amount:     round2(basis * cfg.Discounts.Corporate),
			Percentage: cfg.Discounts.Corporate * 100,
		})
	} else if req.ReturningCustomer {
		b.Discounts = append(b.Discounts, Discount{
			Type:       DiscountLoyalty,
			Name:       "Returning customer discount",
			Amount:     round2(basis * cfg.Discounts.Loyalty),
			Percentage: cfg.Discounts.Loyalty * 100,
		})
	}

	if req.PickupAt.Sub(e.now()) >= advanceBookingLead {
		b.Discounts = append(b.Discounts, Discount{
			Type:       DiscountAdvanceBooking,
			Name:       "Advance booking discount",
			Amount:     round2(basis * cfg.Discounts.AdvanceBooking),
			Percentage: cfg.Discounts.AdvanceBooking * 100,
		})
	}
}

func inPeakWindow(hour int) bool {
	return (hour >= peakMorningStart && hour < peakMorningEnd) ||
		(hour >= peakEveningStart && hour < peakEveningEnd)
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func hasSurcharge(b *QuoteBreakdown, surchargeType string) bool {
	for _, s := range b.Surcharges {
		if s.Type == surchargeType {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
