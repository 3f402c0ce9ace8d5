package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/logger"
)

// Task is a named unit of periodic work. Run must be safe to invoke from
// multiple worker instances at once; every sweep claims its work through
// database predicates.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Worker drives tasks on fixed intervals until its context is cancelled.
type Worker struct {
	tasks []Task
}

// NewWorker creates a worker for the given tasks.
func NewWorker(tasks ...Task) *Worker {
	return &Worker{tasks: tasks}
}

// Start runs every task on its own ticker and blocks until ctx is done.
// Each task also runs once immediately so a fresh deploy does not wait a
// full interval for the first sweep.
func (w *Worker) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range w.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			w.loop(ctx, task)
		}(task)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, task Task) {
	logger.Info("scheduler task started",
		zap.String("task", task.Name),
		zap.Duration("interval", task.Interval))

	w.runOnce(ctx, task)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler task stopped", zap.String("task", task.Name))
			return
		case <-ticker.C:
			w.runOnce(ctx, task)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduler task panicked",
				zap.String("task", task.Name),
				zap.Any("panic", r))
		}
	}()

	if err := task.Run(ctx); err != nil {
		logger.Error("scheduler task failed",
			zap.String("task", task.Name),
			zap.Error(err))
	}
}
