package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luxtransfer/booking/internal/bookings"
	"github.com/luxtransfer/booking/internal/pricing"
)

// Queue is the persistence surface the outbox enqueues into.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
}

// Outbox renders booking events into queued SMS and email jobs. It
// implements the notification surface the booking service depends on;
// delivery is the worker's problem.
type Outbox struct {
	queue Queue
}

// NewOutbox creates an outbox writing to the given queue.
func NewOutbox(queue Queue) *Outbox {
	return &Outbox{queue: queue}
}

// EnqueueBookingConfirmed queues the confirmation SMS and an email carrying
// the calendar invite for the pickup.
func (o *Outbox) EnqueueBookingConfirmed(ctx context.Context, booking *bookings.Booking, confirmation *bookings.Confirmation) error {
	sms := fmt.Sprintf(
		"Your LuxTransfer booking %s is confirmed for %s. Pickup: %s.",
		confirmation.ConfirmationNumber,
		booking.PickupAt().Format("Mon Jan 2 3:04 PM"),
		booking.Request.Pickup.Address,
	)

	emailBody := fmt.Sprintf(
		"Hi %s,\n\nYour booking is confirmed.\n\nConfirmation number: %s\nService: %s\nPickup: %s\nPickup time: %s\nTotal: $%.2f\n\nA calendar invite for your pickup is attached.\n",
		booking.Contact.Name,
		confirmation.ConfirmationNumber,
		booking.Request.ServiceType,
		booking.Request.Pickup.Address,
		booking.PickupAt().Format("Monday, January 2, 2006 at 3:04 PM"),
		booking.TotalAmount,
	)

	invite := icsEvent{
		UID:         fmt.Sprintf("%s@luxtransfer", booking.ID),
		Summary:     fmt.Sprintf("LuxTransfer pickup (%s)", confirmation.ConfirmationNumber),
		Description: fmt.Sprintf("Confirmation %s", confirmation.ConfirmationNumber),
		Location:    booking.Request.Pickup.Address,
		Start:       booking.PickupAt(),
		End:         tripEnd(&booking.Request),
	}

	if err := o.enqueuePair(ctx, booking, KindBookingConfirmed, sms, "Booking confirmed: "+confirmation.ConfirmationNumber, emailBody, invite.render()); err != nil {
		return err
	}
	return nil
}

// EnqueueBookingModified queues notice of an applied modification with the
// updated total.
func (o *Outbox) EnqueueBookingModified(ctx context.Context, booking *bookings.Booking, mod *bookings.Modification) error {
	sms := fmt.Sprintf(
		"Your LuxTransfer booking %s was updated. New pickup: %s. New total: $%.2f.",
		booking.Reference,
		booking.PickupAt().Format("Mon Jan 2 3:04 PM"),
		mod.NewTotal,
	)

	emailBody := fmt.Sprintf(
		"Hi %s,\n\nYour booking %s has been updated.\n\nPickup: %s\nPickup time: %s\nPrevious total: $%.2f\nNew total: $%.2f\n",
		booking.Contact.Name,
		booking.Reference,
		booking.Request.Pickup.Address,
		booking.PickupAt().Format("Monday, January 2, 2006 at 3:04 PM"),
		mod.OriginalTotal,
		mod.NewTotal,
	)

	return o.enqueuePair(ctx, booking, KindBookingModified, sms, "Booking updated: "+booking.Reference, emailBody, "")
}

// EnqueueBookingCancelled queues the cancellation notice with the refund
// outcome.
func (o *Outbox) EnqueueBookingCancelled(ctx context.Context, booking *bookings.Booking, cancellation *bookings.Cancellation) error {
	refundLine := "No refund is due."
	if cancellation.RefundAmount > 0 {
		refundLine = fmt.Sprintf("A refund of $%.2f is being processed.", cancellation.RefundAmount)
	}

	sms := fmt.Sprintf("Your LuxTransfer booking %s has been cancelled. %s", booking.Reference, refundLine)

	emailBody := fmt.Sprintf(
		"Hi %s,\n\nYour booking %s has been cancelled.\n\n%s\n",
		booking.Contact.Name,
		booking.Reference,
		refundLine,
	)

	return o.enqueuePair(ctx, booking, KindBookingCancelled, sms, "Booking cancelled: "+booking.Reference, emailBody, "")
}

// EnqueuePickupReminder queues the day-before reminder SMS. The job is
// unique per booking; repeated sweeps cannot enqueue it twice.
func (o *Outbox) EnqueuePickupReminder(ctx context.Context, booking *bookings.Booking) error {
	sms := fmt.Sprintf(
		"Reminder: your LuxTransfer pickup %s is %s at %s.",
		booking.Reference,
		booking.PickupAt().Format("Mon Jan 2 3:04 PM"),
		booking.Request.Pickup.Address,
	)

	return o.queue.Enqueue(ctx, &Job{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Kind:      KindReminder,
		Channel:   ChannelSMS,
		Payload:   Payload{To: booking.Contact.Phone, Body: sms},
	})
}

func (o *Outbox) enqueuePair(ctx context.Context, booking *bookings.Booking, kind, sms, subject, emailBody, ics string) error {
	if err := o.queue.Enqueue(ctx, &Job{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Kind:      kind,
		Channel:   ChannelSMS,
		Payload:   Payload{To: booking.Contact.Phone, Body: sms},
	}); err != nil {
		return err
	}

	return o.queue.Enqueue(ctx, &Job{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Kind:      kind,
		Channel:   ChannelEmail,
		Payload:   Payload{To: booking.Contact.Email, Subject: subject, Body: emailBody, ICS: ics},
	})
}

// tripEnd estimates when the vehicle is released, for the calendar invite.
func tripEnd(req *pricing.BookingRequest) time.Time {
	switch req.ServiceType {
	case pricing.ServiceHourly:
		return req.PickupAt.Add(time.Duration(req.DurationHours * float64(time.Hour)))
	case pricing.ServiceRoundtrip:
		if req.ReturnAt != nil {
			return req.ReturnAt.Add(2 * time.Hour)
		}
	}
	return req.PickupAt.Add(2 * time.Hour)
}
