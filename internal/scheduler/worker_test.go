package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunsTaskImmediatelyAndOnInterval(t *testing.T) {
	var runs atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	w := NewWorker(Task{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			if runs.Add(1) >= 3 {
				cancel()
			}
			return nil
		},
	})

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
	assert.GreaterOrEqual(t, runs.Load(), int64(3))
}

func TestWorkerSurvivesTaskErrorAndPanic(t *testing.T) {
	var attempts atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	w := NewWorker(Task{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			n := attempts.Add(1)
			switch n {
			case 1:
				return errors.New("transient failure")
			case 2:
				panic("boom")
			default:
				cancel()
				return nil
			}
		},
	})

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died on task failure")
	}
	assert.GreaterOrEqual(t, attempts.Load(), int64(3))
}

type stubSweeper struct{ n int64 }

func (s *stubSweeper) SweepExpired(context.Context) (int64, error) { return s.n, nil }

type stubReminders struct{ n int }

func (s *stubReminders) EnqueueDueReminders(context.Context) (int, error) { return s.n, nil }

type stubOutbox struct{ err error }

func (s *stubOutbox) DispatchDue(context.Context) (int, error) { return 0, s.err }

type stubPricing struct{ refreshed atomic.Int64 }

func (s *stubPricing) RefreshActive(context.Context) error {
	s.refreshed.Add(1)
	return nil
}

type stubReconciler struct{ resolved atomic.Int64 }

func (s *stubReconciler) ReconcileStale(context.Context) (int, error) {
	s.resolved.Add(1)
	return 1, nil
}

func TestTasksWiring(t *testing.T) {
	pricing := &stubPricing{}
	reconciler := &stubReconciler{}
	tasks := Tasks(&stubSweeper{n: 4}, &stubReminders{n: 2}, &stubOutbox{}, pricing, reconciler)
	require.Len(t, tasks, 5)

	names := make(map[string]Task, len(tasks))
	for _, task := range tasks {
		names[task.Name] = task
	}
	require.Contains(t, names, "quote_sweep")
	require.Contains(t, names, "outbox_dispatch")
	require.Contains(t, names, "reminder_scan")
	require.Contains(t, names, "pricing_refresh")
	require.Contains(t, names, "payment_reconcile")

	assert.Equal(t, QuoteSweepInterval, names["quote_sweep"].Interval)
	assert.Equal(t, OutboxDispatchInterval, names["outbox_dispatch"].Interval)
	assert.Equal(t, PaymentReconcileInterval, names["payment_reconcile"].Interval)

	ctx := context.Background()
	for _, task := range tasks {
		assert.NoError(t, task.Run(ctx), task.Name)
	}
	assert.Equal(t, int64(1), pricing.refreshed.Load())
	assert.Equal(t, int64(1), reconciler.resolved.Load())
}

func TestTasksPropagateErrors(t *testing.T) {
	tasks := Tasks(&stubSweeper{}, &stubReminders{}, &stubOutbox{err: errors.New("smtp down")}, &stubPricing{}, &stubReconciler{})

	var outbox Task
	for _, task := range tasks {
		if task.Name == "outbox_dispatch" {
			outbox = task
		}
	}
	require.NotNil(t, outbox.Run)
	assert.Error(t, outbox.Run(context.Background()))
}
