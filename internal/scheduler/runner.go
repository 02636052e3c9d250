package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one pass of recurring work. It must return once ctx is done.
type Job func(ctx context.Context)

// Runner calls a Job on a fixed interval. Passes never overlap: a pass that
// outlasts the interval delays the next tick instead of stacking up.
type Runner struct {
	Name     string
	Logger   *zap.Logger
	Interval time.Duration
	Job      Job
}

func NewRunner(logger *zap.Logger, name string, interval time.Duration, job Job) *Runner {
	if interval < 0 {
		interval = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Name: name, Logger: logger, Interval: interval, Job: job}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled. A zero interval disables the runner.
func (r *Runner) Run(ctx context.Context) {
	if r.Interval == 0 {
		r.Logger.Info("scheduler_disabled", zap.String("job", r.Name))
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.Logger.Info("scheduler_started", zap.String("job", r.Name), zap.Duration("interval", r.Interval))

	// immediate pass
	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("scheduler_stopped", zap.String("job", r.Name))
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.Logger.Error("scheduler_job_panic", zap.String("job", r.Name), zap.Any("panic", p))
		}
	}()
	start := time.Now()
	r.Job(ctx)
	r.Logger.Debug("scheduler_pass", zap.String("job", r.Name), zap.Duration("took", time.Since(start)))
}
