package pricing

import (
	"time"
)

// ServiceType identifies the trip product being priced.
type ServiceType string

const (
	ServiceOneWay    ServiceType = "ONE_WAY"
	ServiceRoundtrip ServiceType = "ROUNDTRIP"
	ServiceHourly    ServiceType = "HOURLY"
)

// Valid reports whether the service type is one of the known products.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceOneWay, ServiceRoundtrip, ServiceHourly:
		return true
	}
	return false
}

// LocationInfo describes a pickup or dropoff point. Immutable, supplied by
// the caller.
type LocationInfo struct {
	Address   string  `json:"address" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"required,latitude"`
	Longitude float64 `json:"longitude" binding:"required,longitude"`
	PlaceID   string  `json:"place_id,omitempty"`
	IsAirport bool    `json:"is_airport"`
}

// BookingRequest is the transient input to a price calculation. It is stored
// alongside the quote for audit but never mutated.
type BookingRequest struct {
	ServiceType       ServiceType   `json:"service_type" binding:"required"`
	Pickup            LocationInfo  `json:"pickup" binding:"required"`
	Dropoff           *LocationInfo `json:"dropoff,omitempty"`
	PickupAt          time.Time     `json:"pickup_at" binding:"required"`
	ReturnAt          *time.Time    `json:"return_at,omitempty"`
	DurationHours     float64       `json:"duration_hours,omitempty"`
	PassengerCount    int           `json:"passenger_count,omitempty"`
	CorporateAccount  bool          `json:"corporate_account"`
	ReturningCustomer bool          `json:"returning_customer"`
}

// Surcharge type constants. Each applied surcharge appears as its own line.
const (
	SurchargeAirport   = "airport"
	SurchargeLateNight = "late_night"
	SurchargeHoliday   = "holiday"
	SurchargePeakHours = "peak_hours"
)

// Discount type constants.
const (
	DiscountCorporate      = "corporate"
	DiscountLoyalty        = "loyalty"
	DiscountAdvanceBooking = "advance_booking"
	DiscountSameDayReturn  = "same_day_return"
)

// Surcharge is a named, itemized addition to the subtotal.
type Surcharge struct {
	Type   string  `json:"type"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Discount is a named, itemized reduction of the subtotal. Percentage records
// the rate applied, for display and audit.
type Discount struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Taxes itemizes the tax portion of a quote. AirportFee is present only when
// an airport surcharge condition was met.
type Taxes struct {
	SalesTax   float64  `json:"sales_tax"`
	AirportFee *float64 `json:"airport_fee,omitempty"`
	Total      float64  `json:"total"`
}

// QuoteBreakdown is the fully itemized output of a price calculation.
// Immutable after creation.
//
// Invariants:
//
//	subtotal == baseRate + distanceCharge + timeCharges + sum(surcharges) - sum(discounts)
//	total == subtotal + taxes.total + gratuity
type QuoteBreakdown struct {
	BaseRate         float64     `json:"base_rate"`
	DistanceCharge   float64     `json:"distance_charge"`
	TimeCharges      float64     `json:"time_charges"`
	Surcharges       []Surcharge `json:"surcharges"`
	Discounts        []Discount  `json:"discounts"`
	Subtotal         float64     `json:"subtotal"`
	Taxes            Taxes       `json:"taxes"`
	Gratuity         float64     `json:"gratuity"`
	Total            float64     `json:"total"`
	ValidUntil       time.Time   `json:"valid_until"`
	BookingReference string      `json:"booking_reference"`
	Warnings         []string    `json:"warnings,omitempty"`
}
