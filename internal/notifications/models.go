package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Job kinds. Reminder jobs are unique per booking so repeated scheduler
// sweeps cannot enqueue a second one.
const (
	KindBookingConfirmed = "booking_confirmed"
	KindBookingModified  = "booking_modified"
	KindBookingCancelled = "booking_cancelled"
	KindReminder         = "reminder_24h"
)

// Delivery channels.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// JobStatus tracks an outbox job through delivery. A 'sending' job holds a
// lease on next_attempt_at; once the lease lapses the job is due again.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobSending JobStatus = "sending"
	JobSent    JobStatus = "sent"
	JobFailed  JobStatus = "failed"
)

// Payload is the rendered message a job delivers. ICS, when set, is attached
// to email deliveries as a calendar invite.
type Payload struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
	ICS     string `json:"ics,omitempty"`
}

// Job is one outbox entry. Delivery happens in the worker, never inline with
// the booking transaction.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	BookingID     uuid.UUID  `json:"booking_id"`
	Kind          string     `json:"kind"`
	Channel       string     `json:"channel"`
	Payload       Payload    `json:"payload"`
	Status        JobStatus  `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}
