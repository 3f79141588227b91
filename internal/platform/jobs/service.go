package jobs

import (
	"context"
	"log/slog"
	"time"

	"hrportal/internal/platform/metrics"
)

const JobSessionSweep = "session_sweep"

// Sweeper removes expired server-side sessions.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	sweeper  Sweeper
	interval time.Duration
	metrics  *metrics.Collector
	now      func() time.Time
	queue    chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

// New builds the job service. A nil sweeper disables the sweep schedule; the
// worker still runs enqueued jobs.
func New(sweeper Sweeper, interval time.Duration, collector *metrics.Collector) *Service {
	return &Service{
		sweeper:  sweeper,
		interval: interval,
		metrics:  collector,
		now:      time.Now,
		queue:    make(chan job, 128),
	}
}

// Run blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.sweeper != nil && s.interval > 0 {
		go s.scheduleSweeps(ctx, s.interval)
	}
	s.worker(ctx)
	return nil
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// SweepNow runs one sweep synchronously and reports how many sessions went.
func (s *Service) SweepNow(ctx context.Context) (int, error) {
	if s.sweeper == nil {
		return 0, nil
	}
	details, err := s.RunNow(ctx, JobSessionSweep, s.sweep)
	removed, _ := details.(int)
	return removed, err
}

func (s *Service) sweep(ctx context.Context) (any, error) {
	removed, err := s.sweeper.Sweep(ctx, s.now())
	if err == nil && s.metrics != nil {
		s.metrics.RecordSwept(removed)
	}
	return removed, err
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	start := time.Now()
	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	slog.Debug("job run", "jobType", j.Type, "status", status, "details", details, "durationMs", time.Since(start).Milliseconds())
	return details, err
}

func (s *Service) scheduleSweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobSessionSweep, s.sweep)
		}
	}
}
