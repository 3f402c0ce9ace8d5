package notifications

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxtransfer/booking/internal/bookings"
	"github.com/luxtransfer/booking/internal/pricing"
)

type memQueue struct {
	jobs []*Job
}

func (q *memQueue) Enqueue(_ context.Context, job *Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func testBooking() *bookings.Booking {
	return &bookings.Booking{
		ID:        uuid.New(),
		Reference: "LT-A1B2C3D4",
		Status:    bookings.StatusConfirmed,
		Contact: bookings.ContactInfo{
			Name:  "Dana Whitfield",
			Email: "dana@example.com",
			Phone: "+15551234567",
		},
		Request: pricing.BookingRequest{
			ServiceType: pricing.ServiceOneWay,
			Pickup: pricing.LocationInfo{
				Address:   "500 Harbor Blvd, Seattle, WA",
				Latitude:  47.60,
				Longitude: -122.33,
			},
			PickupAt: time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC),
		},
		TotalAmount: 145.00,
	}
}

func TestOutboxBookingConfirmed(t *testing.T) {
	queue := &memQueue{}
	outbox := NewOutbox(queue)
	booking := testBooking()
	confirmation := &bookings.Confirmation{
		BookingID:          booking.ID,
		ConfirmationNumber: "LT-A1B2C3D4",
	}

	err := outbox.EnqueueBookingConfirmed(context.Background(), booking, confirmation)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 2)

	sms := queue.jobs[0]
	assert.Equal(t, ChannelSMS, sms.Channel)
	assert.Equal(t, KindBookingConfirmed, sms.Kind)
	assert.Equal(t, booking.Contact.Phone, sms.Payload.To)
	assert.Contains(t, sms.Payload.Body, "LT-A1B2C3D4")

	email := queue.jobs[1]
	assert.Equal(t, ChannelEmail, email.Channel)
	assert.Equal(t, booking.Contact.Email, email.Payload.To)
	assert.Contains(t, email.Payload.Body, "Dana Whitfield")
	assert.Contains(t, email.Payload.Body, "$145.00")
	assert.Contains(t, email.Payload.ICS, "BEGIN:VCALENDAR")
	assert.Contains(t, email.Payload.ICS, "DTSTART:20250610T143000Z")
	assert.Contains(t, email.Payload.ICS, "500 Harbor Blvd\\, Seattle\\, WA")
}

func TestOutboxBookingModified(t *testing.T) {
	queue := &memQueue{}
	outbox := NewOutbox(queue)
	booking := testBooking()
	mod := &bookings.Modification{
		BookingID:     booking.ID,
		OriginalTotal: 145.00,
		NewTotal:      168.81,
	}

	err := outbox.EnqueueBookingModified(context.Background(), booking, mod)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 2)
	assert.Contains(t, queue.jobs[0].Payload.Body, "$168.81")
	assert.Contains(t, queue.jobs[1].Payload.Body, "$145.00")
	assert.Empty(t, queue.jobs[1].Payload.ICS)
}

func TestOutboxBookingCancelledWithRefund(t *testing.T) {
	queue := &memQueue{}
	outbox := NewOutbox(queue)
	booking := testBooking()
	cancellation := &bookings.Cancellation{
		BookingID:    booking.ID,
		RefundAmount: 86.19,
		RefundStatus: bookings.RefundProcessing,
	}

	err := outbox.EnqueueBookingCancelled(context.Background(), booking, cancellation)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 2)
	for _, job := range queue.jobs {
		assert.Equal(t, KindBookingCancelled, job.Kind)
		assert.Contains(t, job.Payload.Body, "$86.19")
	}
}

func TestOutboxBookingCancelledNoRefund(t *testing.T) {
	queue := &memQueue{}
	outbox := NewOutbox(queue)
	booking := testBooking()
	cancellation := &bookings.Cancellation{BookingID: booking.ID, RefundAmount: 0}

	err := outbox.EnqueueBookingCancelled(context.Background(), booking, cancellation)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 2)
	assert.Contains(t, queue.jobs[0].Payload.Body, "No refund is due")
}

func TestOutboxPickupReminder(t *testing.T) {
	queue := &memQueue{}
	outbox := NewOutbox(queue)
	booking := testBooking()

	err := outbox.EnqueuePickupReminder(context.Background(), booking)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, KindReminder, queue.jobs[0].Kind)
	assert.Equal(t, ChannelSMS, queue.jobs[0].Channel)
	assert.Contains(t, queue.jobs[0].Payload.Body, "Reminder")
}

func TestICSEscaping(t *testing.T) {
	event := icsEvent{
		UID:      "x@luxtransfer",
		Summary:  "Pickup; with, specials",
		Location: "12 Main St, Apt 4",
		Start:    time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 6, 10, 16, 0, 0, 0, time.UTC),
	}

	out := event.render()

	assert.Contains(t, out, "SUMMARY:Pickup\\; with\\, specials")
	assert.Contains(t, out, "LOCATION:12 Main St\\, Apt 4")
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	for _, line := range strings.Split(strings.TrimRight(out, "\r\n"), "\r\n") {
		assert.NotEmpty(t, line)
	}
}
