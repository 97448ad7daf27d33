// Package worker runs the server's periodic background jobs.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one periodic background task
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Runner drives a fixed set of jobs, each on its own ticker, until stopped
type Runner struct {
	jobs   []Job
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Runner for the given jobs
func New(logger *slog.Logger, jobs ...Job) *Runner {
	return &Runner{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "worker")),
	}
}

// Start launches every job. Jobs stop when ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, job)
	}
	r.logger.Info("workers started", slog.Int("jobs", len(r.jobs)))
}

// Stop cancels every job and waits for running iterations to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// RunOnce runs every job a single time, in order
func (r *Runner) RunOnce(ctx context.Context) {
	for _, job := range r.jobs {
		r.runJob(ctx, job)
	}
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("worker stopped", slog.String("job", job.Name))
			return
		case <-ticker.C:
			r.runJob(ctx, job)
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("worker job panicked",
				slog.String("job", job.Name),
				slog.Any("error", err))
		}
	}()
	job.Run(ctx)
}
