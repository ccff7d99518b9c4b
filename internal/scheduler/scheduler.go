// Package scheduler runs the background jobs the payment hub needs on a
// cadence: the optional midnight balance reset, the nightly settlement
// roll-up, the periodic on-chain receipt poll, and the overdue-settlement
// sweep. It is a small cron-like runner rather than a hard-coded
// singleton worker, so cmd/server can bind whichever jobs the deployment's
// configuration actually enables.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one schedulable unit of work.
type Job struct {
	// Name identifies the job in logs.
	Name string
	// Interval runs Run every Interval, starting Interval after Start. Mutually
	// exclusive with DailyAt.
	Interval time.Duration
	// DailyAt runs Run once per day at this offset from UTC midnight.
	// Mutually exclusive with Interval.
	DailyAt *time.Duration
	// Run performs the job's work. A returned error is logged; it never
	// stops the schedule.
	Run func(ctx context.Context) error
}

// Scheduler drives a fixed set of Jobs, each on its own goroutine.
type Scheduler struct {
	jobs   []Job
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Scheduler bound to jobs. Jobs are not started until Start is
// called.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start launches every bound job in its own goroutine. It is safe to call
// once; a second call is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	for _, j := range s.jobs {
		j := j
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJob(ctx, j)
		}()
	}
	log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop signals every job loop to exit and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runJob(ctx context.Context, j Job) {
	if j.DailyAt != nil {
		s.runDaily(ctx, j)
		return
	}
	s.runInterval(ctx, j)
}

func (s *Scheduler) runInterval(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			execute(ctx, j)
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context, j Job) {
	for {
		wait := time.Until(nextDailyFire(*j.DailyAt))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			execute(ctx, j)
		}
	}
}

// nextDailyFire returns the next UTC instant at offset past midnight.
func nextDailyFire(offset time.Duration) time.Time {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	fire := midnight.Add(offset)
	if !fire.After(now) {
		fire = fire.Add(24 * time.Hour)
	}
	return fire
}

func execute(ctx context.Context, j Job) {
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		log.Error().Err(err).Str("job", j.Name).Msg("scheduled job failed")
		return
	}
	log.Debug().Str("job", j.Name).Dur("elapsed", time.Since(start)).Msg("scheduled job completed")
}
