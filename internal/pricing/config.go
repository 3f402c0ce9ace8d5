package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrOverlappingConfigs indicates more than one config claims to be active
// for the same instant. This is a configuration error surfaced at load time,
// never resolved silently.
var ErrOverlappingConfigs = errors.New("pricing: overlapping active configs")

// ErrNoActiveConfig indicates no config covers the requested instant.
var ErrNoActiveConfig = errors.New("pricing: no active config")

// activeAt picks the single config whose effective window covers the
// instant. Two covering configs are a configuration error: the caller gets
// ErrOverlappingConfigs instead of a silently chosen winner.
func activeAt(configs []*Config, at time.Time) (*Config, error) {
	var active *Config
	for _, cfg := range configs {
		if !cfg.ActiveAt(at) {
			continue
		}
		if active != nil {
			return nil, ErrOverlappingConfigs
		}
		active = cfg
	}
	if active == nil {
		return nil, ErrNoActiveConfig
	}
	return active, nil
}

// OneWayRates are the rate parameters for ONE_WAY trips.
type OneWayRates struct {
	BaseRate         float64 `json:"base_rate"`
	PerMileRate      float64 `json:"per_mile_rate"`
	MinimumFare      float64 `json:"minimum_fare"`
	MaxDistanceMiles float64 `json:"max_distance_miles"`
}

// RoundtripRates are the rate parameters for ROUNDTRIP trips.
type RoundtripRates struct {
	Multiplier          float64 `json:"multiplier"`
	WaitTimeHourlyRate  float64 `json:"wait_time_hourly_rate"`
	SameDayDiscountRate float64 `json:"same_day_discount_rate"`
}

// HourlyRates are the rate parameters for HOURLY trips.
type HourlyRates struct {
	BaseHourlyRate         float64 `json:"base_hourly_rate"`
	MinimumHours           float64 `json:"minimum_hours"`
	OvertimeThresholdHours float64 `json:"overtime_threshold_hours"`
	OvertimeRate           float64 `json:"overtime_rate"`
	IncludedMilesPerHour   float64 `json:"included_miles_per_hour"`
	ExcessMileRate         float64 `json:"excess_mile_rate"`
}

// SurchargeRates are the flat surcharge amounts and their calendars.
// Holiday dates use the YYYY-MM-DD form in the pickup's local calendar.
type SurchargeRates struct {
	Airport      float64        `json:"airport"`
	LateNight    float64        `json:"late_night"`
	Holiday      float64        `json:"holiday"`
	PeakHours    float64        `json:"peak_hours"`
	HolidayDates []string       `json:"holiday_dates"`
	PeakWeekdays []time.Weekday `json:"peak_weekdays"`
}

// DiscountRates are fractional rates applied against the pre-surcharge
// subtotal basis.
type DiscountRates struct {
	Corporate      float64 `json:"corporate"`
	Loyalty        float64 `json:"loyalty"`
	AdvanceBooking float64 `json:"advance_booking"`
}

// TaxRates are fractional rates applied against the final subtotal.
type TaxRates struct {
	SalesTaxRate   float64 `json:"sales_tax_rate"`
	AirportFeeRate float64 `json:"airport_fee_rate"`
}

// Config is a versioned, immutable rate table. A new version supersedes the
// old one; exactly one config is active for any instant.
type Config struct {
	ID            uuid.UUID      `json:"id"`
	Version       int            `json:"version"`
	OneWay        OneWayRates    `json:"one_way"`
	Roundtrip     RoundtripRates `json:"roundtrip"`
	Hourly        HourlyRates    `json:"hourly"`
	Surcharges    SurchargeRates `json:"surcharges"`
	Discounts     DiscountRates  `json:"discounts"`
	Taxes         TaxRates       `json:"taxes"`
	GratuityRate  float64        `json:"gratuity_rate"`
	EffectiveFrom time.Time      `json:"effective_from"`
	EffectiveTo   *time.Time     `json:"effective_to,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ActiveAt reports whether the config's effective window covers t.
func (c *Config) ActiveAt(t time.Time) bool {
	if t.Before(c.EffectiveFrom) {
		return false
	}
	if c.EffectiveTo != nil && !t.Before(*c.EffectiveTo) {
		return false
	}
	return true
}

// IsHoliday reports whether the pickup's local calendar date is in the
// configured holiday list.
func (c *Config) IsHoliday(t time.Time) bool {
	date := t.Format("2006-01-02")
	for _, holiday := range c.Surcharges.HolidayDates {
		if holiday == date {
			return true
		}
	}
	return false
}

// IsPeakWeekday reports whether the pickup's weekday is configured for peak
// surcharges.
func (c *Config) IsPeakWeekday(t time.Time) bool {
	for _, day := range c.Surcharges.PeakWeekdays {
		if day == t.Weekday() {
			return true
		}
	}
	return false
}

// Validate rejects rate tables that could not price any trip.
func (c *Config) Validate() error {
	if c.OneWay.PerMileRate <= 0 || c.OneWay.BaseRate <= 0 {
		return fmt.Errorf("pricing: one-way rates must be positive")
	}
	if c.OneWay.MaxDistanceMiles <= 0 {
		return fmt.Errorf("pricing: one-way max distance must be positive")
	}
	if c.Roundtrip.Multiplier < 1 {
		return fmt.Errorf("pricing: roundtrip multiplier must be >= 1")
	}
	if c.Hourly.MinimumHours <= 0 || c.Hourly.BaseHourlyRate <= 0 {
		return fmt.Errorf("pricing: hourly rates must be positive")
	}
	if c.Hourly.OvertimeThresholdHours <= 0 {
		return fmt.Errorf("pricing: hourly overtime threshold must be positive")
	}
	if c.Taxes.SalesTaxRate < 0 || c.Taxes.AirportFeeRate < 0 {
		return fmt.Errorf("pricing: tax rates must not be negative")
	}
	if c.GratuityRate < 0 {
		return fmt.Errorf("pricing: gratuity rate must not be negative")
	}
	if c.EffectiveTo != nil && !c.EffectiveTo.After(c.EffectiveFrom) {
		return fmt.Errorf("pricing: effective_to must be after effective_from")
	}
	return nil
}

// DefaultConfig is the rate table used in tests and as a development seed.
var DefaultConfig = Config{
	Version: 1,
	OneWay: OneWayRates{
		BaseRate:         25.00,
		PerMileRate:      2.50,
		MinimumFare:      35.00,
		MaxDistanceMiles: 200,
	},
	Roundtrip: RoundtripRates{
		Multiplier:          1.8,
		WaitTimeHourlyRate:  45.00,
		SameDayDiscountRate: 0.10,
	},
	Hourly: HourlyRates{
		BaseHourlyRate:         75.00,
		MinimumHours:           4,
		OvertimeThresholdHours: 8,
		OvertimeRate:           90.00,
		IncludedMilesPerHour:   15,
		ExcessMileRate:         2.00,
	},
	Surcharges: SurchargeRates{
		Airport:   15.00,
		LateNight: 20.00,
		Holiday:   30.00,
		PeakHours: 10.00,
		PeakWeekdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	},
	Discounts: DiscountRates{
		Corporate:      0.15,
		Loyalty:        0.10,
		AdvanceBooking: 0.05,
	},
	Taxes: TaxRates{
		SalesTaxRate:   0.0825,
		AirportFeeRate: 0.04,
	},
	GratuityRate:  0.20,
	EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}
