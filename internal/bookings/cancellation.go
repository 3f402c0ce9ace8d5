package bookings

import (
	"math"
	"strings"
	"time"
)

// Refund policy windows, measured from cancellation time to scheduled pickup.
const (
	fullRefundLead = 24 * time.Hour
	halfRefundLead = 2 * time.Hour
)

// emergencyReasons qualify for a full refund with no fee regardless of
// timing.
var emergencyReasons = []string{"medical", "weather", "vehicle breakdown"}

// CancellationPolicy computes refunds from the time remaining until pickup,
// trip protection, and emergency exceptions.
type CancellationPolicy struct {
	StandardFee       float64
	LastMinuteFee     float64
	TripProtectionFee float64
}

// RefundDecision is the itemized outcome of a policy evaluation.
type RefundDecision struct {
	GrossRefund           float64 `json:"gross_refund"`
	Fee                   float64 `json:"fee"`
	RefundAmount          float64 `json:"refund_amount"`
	TripProtectionApplied bool    `json:"trip_protection_applied"`
}

// Evaluate computes the refund for cancelling a booking of the given total.
// Evaluation order: emergency exception, then trip protection, then the
// standard time-based tiers. The refund never goes negative.
func (p CancellationPolicy) Evaluate(total float64, cancellationType CancellationType, reason string, now, pickupAt time.Time, tripProtection bool) RefundDecision {
	if cancellationType == CancellationEmergency && isEmergencyReason(reason) {
		return RefundDecision{
			GrossRefund:  total,
			Fee:          0,
			RefundAmount: roundCents(total),
		}
	}

	if tripProtection {
		return RefundDecision{
			GrossRefund:           total,
			Fee:                   p.TripProtectionFee,
			RefundAmount:          roundCents(math.Max(0, total-p.TripProtectionFee)),
			TripProtectionApplied: true,
		}
	}

	lead := pickupAt.Sub(now)
	var gross, fee float64
	switch {
	case lead >= fullRefundLead:
		gross, fee = total, p.StandardFee
	case lead >= halfRefundLead:
		gross, fee = total*0.5, p.StandardFee
	default:
		gross, fee = 0, p.LastMinuteFee
	}

	return RefundDecision{
		GrossRefund:  roundCents(gross),
		Fee:          fee,
		RefundAmount: roundCents(math.Max(0, gross-fee)),
	}
}

func isEmergencyReason(reason string) bool {
	normalized := strings.ToLower(strings.TrimSpace(reason))
	for _, candidate := range emergencyReasons {
		if strings.Contains(normalized, candidate) {
			return true
		}
	}
	return false
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
