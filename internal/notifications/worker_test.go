package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClaimLease = 5 * time.Minute

// memJobStore models the lease semantics of the SQL claim: queued jobs and
// 'sending' jobs with a lapsed lease are claimable, a claim pushes
// next_attempt_at past the lease window.
type memJobStore struct {
	jobs    []*Job
	now     time.Time
	sent    []uuid.UUID
	retries map[uuid.UUID]time.Time
	failed  map[uuid.UUID]string
}

func newMemJobStore(jobs ...*Job) *memJobStore {
	for _, job := range jobs {
		if job.Status == "" {
			job.Status = JobQueued
		}
	}
	return &memJobStore{
		jobs:    jobs,
		now:     time.Now(),
		retries: make(map[uuid.UUID]time.Time),
		failed:  make(map[uuid.UUID]string),
	}
}

func (m *memJobStore) ClaimDue(_ context.Context, limit int) ([]*Job, error) {
	var claimed []*Job
	for _, job := range m.jobs {
		if len(claimed) == limit {
			break
		}
		if job.Status != JobQueued && job.Status != JobSending {
			continue
		}
		if job.NextAttemptAt.After(m.now) {
			continue
		}
		job.Status = JobSending
		job.NextAttemptAt = m.now.Add(testClaimLease)
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (m *memJobStore) find(id uuid.UUID) *Job {
	for _, job := range m.jobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func (m *memJobStore) MarkSent(_ context.Context, id uuid.UUID) error {
	m.sent = append(m.sent, id)
	if job := m.find(id); job != nil {
		job.Status = JobSent
	}
	return nil
}

func (m *memJobStore) MarkRetry(_ context.Context, id uuid.UUID, nextAttempt time.Time, _ string) error {
	m.retries[id] = nextAttempt
	if job := m.find(id); job != nil {
		job.Status = JobQueued
		job.NextAttemptAt = nextAttempt
		job.Attempts++
	}
	return nil
}

func (m *memJobStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.failed[id] = reason
	if job := m.find(id); job != nil {
		job.Status = JobFailed
	}
	return nil
}

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, to, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeEmail struct {
	sent []string
	ics  []string
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, _, _, ics string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	f.ics = append(f.ics, ics)
	return nil
}

func smsJob(attempts int) *Job {
	return &Job{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		Kind:      KindBookingConfirmed,
		Channel:   ChannelSMS,
		Payload:   Payload{To: "+15551234567", Body: "confirmed"},
		Attempts:  attempts,
	}
}

func TestDispatchDueDeliversBothChannels(t *testing.T) {
	email := &Job{
		ID:      uuid.New(),
		Kind:    KindBookingConfirmed,
		Channel: ChannelEmail,
		Payload: Payload{To: "dana@example.com", Subject: "Booking confirmed", Body: "hi", ICS: "BEGIN:VCALENDAR"},
	}
	store := newMemJobStore(smsJob(0), email)
	sms := &fakeSMS{}
	mail := &fakeEmail{}
	d := NewDispatcher(store, sms, mail)

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"+15551234567"}, sms.sent)
	assert.Equal(t, []string{"dana@example.com"}, mail.sent)
	assert.Equal(t, []string{"BEGIN:VCALENDAR"}, mail.ics)
	assert.Len(t, store.sent, 2)
}

func TestDispatchDueReclaimsLapsedClaim(t *testing.T) {
	// A worker that died mid-delivery leaves the job in 'sending' with a
	// lapsed lease; the next dispatch picks it up again.
	job := smsJob(0)
	job.Status = JobSending
	store := newMemJobStore(job)
	sms := &fakeSMS{}
	d := NewDispatcher(store, sms, &fakeEmail{})

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"+15551234567"}, sms.sent)
	assert.Equal(t, []uuid.UUID{job.ID}, store.sent)
}

func TestDispatchDueHonorsActiveClaimLease(t *testing.T) {
	job := smsJob(0)
	job.Status = JobSending
	job.NextAttemptAt = time.Now().Add(time.Minute)
	store := newMemJobStore(job)
	sms := &fakeSMS{}
	d := NewDispatcher(store, sms, &fakeEmail{})

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, sent)
	assert.Empty(t, sms.sent)
	assert.Empty(t, store.sent)
}

func TestDispatchFailureSchedulesBackoff(t *testing.T) {
	job := smsJob(2)
	store := newMemJobStore(job)
	sms := &fakeSMS{err: errors.New("twilio unavailable")}
	d := NewDispatcher(store, sms, &fakeEmail{})
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, sent)
	next, ok := store.retries[job.ID]
	require.True(t, ok)
	// Third failure: delay doubles per completed attempt.
	assert.Equal(t, now.Add(4*time.Minute), next)
	assert.Empty(t, store.failed)
}

func TestDispatchExhaustedAttemptsParksJob(t *testing.T) {
	job := smsJob(4)
	store := newMemJobStore(job)
	d := NewDispatcher(store, &fakeSMS{err: errors.New("twilio unavailable")}, &fakeEmail{})

	sent, err := d.DispatchDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, sent)
	assert.Empty(t, store.retries)
	assert.Equal(t, "twilio unavailable", store.failed[job.ID])
}

func TestDispatchUnknownChannelFails(t *testing.T) {
	job := &Job{ID: uuid.New(), Channel: "pigeon", Attempts: maxAttempts - 1}
	store := newMemJobStore(job)
	d := NewDispatcher(store, &fakeSMS{}, &fakeEmail{})

	_, err := d.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Contains(t, store.failed[job.ID], "unsupported channel")
}

func TestRetryDelayDoubles(t *testing.T) {
	assert.Equal(t, time.Minute, retryDelay(0))
	assert.Equal(t, 2*time.Minute, retryDelay(1))
	assert.Equal(t, 8*time.Minute, retryDelay(3))
}

func TestSMTPMessageWithInvite(t *testing.T) {
	msg := string(buildMessage("ops@luxtransfer.example", "dana@example.com", "Booking confirmed", "hi", "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))

	assert.Contains(t, msg, "Subject: Booking confirmed")
	assert.Contains(t, msg, "multipart/mixed")
	assert.Contains(t, msg, `filename="pickup.ics"`)
	assert.NotContains(t, msg, "BEGIN:VCALENDAR\r\nEND", "invite must be base64 encoded")
}

func TestSMTPMessagePlain(t *testing.T) {
	msg := string(buildMessage("ops@luxtransfer.example", "dana@example.com", "Reminder", "see you soon", ""))

	assert.Contains(t, msg, "text/plain")
	assert.NotContains(t, msg, "multipart")
	assert.Contains(t, msg, "see you soon")
}
