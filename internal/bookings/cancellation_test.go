package bookings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var policyNow = time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)

func standardPolicy() CancellationPolicy {
	return CancellationPolicy{
		StandardFee:       10.00,
		LastMinuteFee:     25.00,
		TripProtectionFee: 5.00,
	}
}

func TestCancellationPolicy_StandardTiers(t *testing.T) {
	policy := standardPolicy()

	tests := []struct {
		name         string
		lead         time.Duration
		total        float64
		expectGross  float64
		expectFee    float64
		expectRefund float64
	}{
		{
			name: "30 hours out refunds full minus standard fee",
			lead: 30 * time.Hour, total: 100,
			expectGross: 100, expectFee: 10, expectRefund: 90,
		},
		{
			name: "exactly 24 hours still full refund tier",
			lead: 24 * time.Hour, total: 100,
			expectGross: 100, expectFee: 10, expectRefund: 90,
		},
		{
			name: "12 hours out refunds half minus standard fee",
			lead: 12 * time.Hour, total: 100,
			expectGross: 50, expectFee: 10, expectRefund: 40,
		},
		{
			name: "exactly 2 hours is still the half tier",
			lead: 2 * time.Hour, total: 100,
			expectGross: 50, expectFee: 10, expectRefund: 40,
		},
		{
			name: "1 hour out refunds nothing and never goes negative",
			lead: time.Hour, total: 100,
			expectGross: 0, expectFee: 25, expectRefund: 0,
		},
		{
			name: "small total where the fee exceeds the refund floors at zero",
			lead: 12 * time.Hour, total: 15,
			expectGross: 7.5, expectFee: 10, expectRefund: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.Evaluate(tt.total, CancellationStandard, "change of plans",
				policyNow, policyNow.Add(tt.lead), false)

			assert.Equal(t, tt.expectGross, decision.GrossRefund)
			assert.Equal(t, tt.expectFee, decision.Fee)
			assert.Equal(t, tt.expectRefund, decision.RefundAmount)
			assert.False(t, decision.TripProtectionApplied)
		})
	}
}

func TestCancellationPolicy_EmergencyFullRefund(t *testing.T) {
	policy := standardPolicy()

	for _, reason := range []string{"medical emergency", "severe weather", "vehicle breakdown"} {
		t.Run(reason, func(t *testing.T) {
			// Even inside the last-minute window.
			decision := policy.Evaluate(200, CancellationEmergency, reason,
				policyNow, policyNow.Add(30*time.Minute), false)

			assert.Equal(t, 200.00, decision.RefundAmount)
			assert.Equal(t, 0.00, decision.Fee)
		})
	}
}

func TestCancellationPolicy_EmergencyTypeWithOrdinaryReasonFallsThrough(t *testing.T) {
	policy := standardPolicy()

	decision := policy.Evaluate(100, CancellationEmergency, "changed my mind",
		policyNow, policyNow.Add(time.Hour), false)

	assert.Equal(t, 0.00, decision.RefundAmount)
	assert.Equal(t, 25.00, decision.Fee)
}

func TestCancellationPolicy_TripProtection(t *testing.T) {
	policy := standardPolicy()

	// Trip protection overrides the time tiers, less its processing fee.
	decision := policy.Evaluate(150, CancellationStandard, "change of plans",
		policyNow, policyNow.Add(time.Hour), true)

	assert.Equal(t, 145.00, decision.RefundAmount)
	assert.Equal(t, 5.00, decision.Fee)
	assert.True(t, decision.TripProtectionApplied)
}
