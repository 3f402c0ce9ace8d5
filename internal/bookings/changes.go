package bookings

import (
	"fmt"
	"time"

	"github.com/luxtransfer/booking/internal/pricing"
)

// ChangeType discriminates the concrete change carried by a Change.
type ChangeType string

const (
	ChangeDateTime       ChangeType = "datetime"
	ChangeLocation       ChangeType = "location"
	ChangeServiceType    ChangeType = "service_type"
	ChangeEnhancement    ChangeType = "enhancement"
	ChangePassengerCount ChangeType = "passenger_count"
)

// DateTimeChange moves the pickup and, for roundtrips, the return time.
type DateTimeChange struct {
	PickupAt time.Time  `json:"pickup_at" binding:"required"`
	ReturnAt *time.Time `json:"return_at,omitempty"`
}

// LocationChange replaces pickup and/or dropoff locations.
type LocationChange struct {
	Pickup  *pricing.LocationInfo `json:"pickup,omitempty"`
	Dropoff *pricing.LocationInfo `json:"dropoff,omitempty"`
}

// ServiceTypeChange switches the trip product, carrying the fields the new
// product requires.
type ServiceTypeChange struct {
	ServiceType   pricing.ServiceType `json:"service_type" binding:"required"`
	ReturnAt      *time.Time          `json:"return_at,omitempty"`
	DurationHours float64             `json:"duration_hours,omitempty"`
}

// EnhancementChange adds or removes a flat-priced extra such as a child seat
// or meet-and-greet. Amount may be negative for removals.
type EnhancementChange struct {
	Name   string  `json:"name" binding:"required"`
	Amount float64 `json:"amount"`
}

// PassengerCountChange updates the passenger count.
type PassengerCountChange struct {
	PassengerCount int `json:"passenger_count" binding:"required,min=1"`
}

// Change is a tagged union: exactly one of the concrete change fields is set,
// discriminated by Type. This keeps the fee and price-diff logic an
// exhaustive switch instead of optional-field probing.
type Change struct {
	Type           ChangeType            `json:"type" binding:"required"`
	DateTime       *DateTimeChange       `json:"datetime,omitempty"`
	Location       *LocationChange       `json:"location,omitempty"`
	ServiceType    *ServiceTypeChange    `json:"service_type_change,omitempty"`
	Enhancement    *EnhancementChange    `json:"enhancement,omitempty"`
	PassengerCount *PassengerCountChange `json:"passenger_count_change,omitempty"`
}

// Validate checks that the discriminator matches the populated variant.
func (c *Change) Validate() error {
	switch c.Type {
	case ChangeDateTime:
		if c.DateTime == nil {
			return fmt.Errorf("datetime change payload is required")
		}
	case ChangeLocation:
		if c.Location == nil {
			return fmt.Errorf("location change payload is required")
		}
		if c.Location.Pickup == nil && c.Location.Dropoff == nil {
			return fmt.Errorf("location change must set pickup or dropoff")
		}
	case ChangeServiceType:
		if c.ServiceType == nil {
			return fmt.Errorf("service type change payload is required")
		}
		if !c.ServiceType.ServiceType.Valid() {
			return fmt.Errorf("unknown service type %q", c.ServiceType.ServiceType)
		}
	case ChangeEnhancement:
		if c.Enhancement == nil {
			return fmt.Errorf("enhancement change payload is required")
		}
	case ChangePassengerCount:
		if c.PassengerCount == nil {
			return fmt.Errorf("passenger count change payload is required")
		}
		if c.PassengerCount.PassengerCount < 1 {
			return fmt.Errorf("passenger count must be at least 1")
		}
	default:
		return fmt.Errorf("unknown change type %q", c.Type)
	}
	return nil
}

// IncursFee reports whether this change type carries the flat modification
// fee. Datetime and service-type changes reschedule dispatch, so they do.
func (c *Change) IncursFee() bool {
	return c.Type == ChangeDateTime || c.Type == ChangeServiceType
}

// Repriced reports whether the change requires re-running the pricing engine
// against the modified request. Enhancement changes are flat add-ons priced
// directly.
func (c *Change) Repriced() bool {
	return c.Type != ChangeEnhancement && c.Type != ChangePassengerCount
}

// ApplyTo returns a copy of the request with this change applied.
func (c *Change) ApplyTo(req pricing.BookingRequest) pricing.BookingRequest {
	switch c.Type {
	case ChangeDateTime:
		req.PickupAt = c.DateTime.PickupAt
		if c.DateTime.ReturnAt != nil {
			req.ReturnAt = c.DateTime.ReturnAt
		}
	case ChangeLocation:
		if c.Location.Pickup != nil {
			req.Pickup = *c.Location.Pickup
		}
		if c.Location.Dropoff != nil {
			req.Dropoff = c.Location.Dropoff
		}
	case ChangeServiceType:
		req.ServiceType = c.ServiceType.ServiceType
		req.ReturnAt = c.ServiceType.ReturnAt
		req.DurationHours = c.ServiceType.DurationHours
		if req.ServiceType == pricing.ServiceHourly {
			req.Dropoff = nil
		}
	case ChangePassengerCount:
		req.PassengerCount = c.PassengerCount.PassengerCount
	}
	return req
}
