package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute
)

type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the registered jobs on a fixed cadence. A cycle only does work
// on the replica holding the distributed lock.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron service: logger is required")
	case params.Lock == nil:
		return nil, errors.New("cron service: lock is required")
	}

	svc := &Service{
		logg:       params.Logger,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   orDefault(params.Interval, defaultInterval),
		jobTimeout: orDefault(params.JobTimeout, defaultJobTimeout),
		now:        time.Now,
	}
	if params.Registry != nil {
		svc.jobs = params.Registry.Jobs()
	}
	return svc, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled, returning ctx.Err().
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle aborted", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job once if this replica wins the lock. Job failures are
// logged and counted but not returned; only lock failures are.
func (s *Service) RunOnce(ctx context.Context) error {
	won, err := s.lock.Acquire(ctx)
	switch {
	case err != nil:
		s.metrics.Cycle(metrics.CycleLockFailure)
		return fmt.Errorf("acquire cron lock: %w", err)
	case !won:
		s.metrics.Cycle(metrics.CycleLockHeld)
		s.logg.Debug(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	s.metrics.Cycle(metrics.CycleRan)
	defer s.release(ctx)

	var failed []string
	for _, job := range s.jobs {
		if err := s.runJob(ctx, job); err != nil {
			failed = append(failed, job.Name())
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":   len(s.jobs),
		"failed": failed,
	}), "cron cycle finished")
	return nil
}

func (s *Service) release(ctx context.Context) {
	// Release even when the cycle ctx is already cancelled.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.lock.Release(releaseCtx); err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("release cron lock: %v", err))
	}
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	started := s.now()
	err := job.Run(runCtx)
	finished := s.now()
	s.metrics.ObserveRun(job.Name(), finished.Sub(started), err, finished)

	ctx = s.logg.WithField(ctx, "duration_ms", finished.Sub(started).Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return err
	}
	s.logg.Info(ctx, "cron job finished")
	return nil
}
