// Package workers runs periodic maintenance for the stub identity service.
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task is one named operation of a worker cycle. It returns how many items it handled.
type Task struct {
	Name string
	Fn   func(ctx context.Context) (int, error)
}

type Worker struct {
	name     string
	interval time.Duration
	tasks    []Task
	logger   *zap.Logger
}

func New(name string, interval time.Duration, logger *zap.Logger, tasks ...Task) *Worker {
	if logger == nil {
		logger = zap.L()
	}
	return &Worker{
		name:     name,
		interval: interval,
		tasks:    tasks,
		logger:   logger.With(zap.String("worker", name)),
	}
}

// Run executes a cycle immediately, then one per interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Starting worker", zap.Duration("interval", w.interval))

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes every task once and returns the per-task counts.
func (w *Worker) RunOnce(ctx context.Context) map[string]int {
	startTime := time.Now()
	counts := make(map[string]int, len(w.tasks))

	fields := make([]zap.Field, 0, len(w.tasks)+1)
	for _, task := range w.tasks {
		count, err := task.Fn(ctx)
		if err != nil {
			w.logger.Error("Worker task failed", zap.String("task", task.Name), zap.Error(err))
		}
		counts[task.Name] = count
		fields = append(fields, zap.Int(task.Name, count))
	}
	fields = append(fields, zap.Duration("duration", time.Since(startTime)))

	w.logger.Debug("Worker cycle complete", fields...)
	return counts
}

type purger interface {
	PurgeExpired() int
}

// NewJanitor drops expired reset challenges and revocations from the identity service.
func NewJanitor(p purger, interval time.Duration, logger *zap.Logger) *Worker {
	return New("identity_janitor", interval, logger, Task{
		Name: "expired_entries",
		Fn: func(context.Context) (int, error) {
			return p.PurgeExpired(), nil
		},
	})
}
