package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mosport/venue-signal/internal/metrics"
)

// IntervalScheduler runs each job on its own ticker in-process. A job runs
// synchronously in its loop, so ticks that arrive while it is still running
// collapse into one pending tick.
type IntervalScheduler struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	metrics *metrics.Metrics

	mu      sync.Mutex
	jobs    []entry
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewInterval creates a scheduler allowing maxConcurrent jobs at once.
// timeout bounds each run; zero means no bound.
func NewInterval(maxConcurrent int, timeout time.Duration, m *metrics.Metrics) *IntervalScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &IntervalScheduler{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
		metrics: m,
	}
}

func (s *IntervalScheduler) Schedule(name string, every time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	if err := validate(name, every, job, s.jobs); err != nil {
		return err
	}
	s.jobs = append(s.jobs, entry{name: name, every: every, job: job})
	return nil
}

// Start launches one loop per job and returns immediately.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	zap.L().Info("scheduler: started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Shutdown stops the loops and waits for running jobs, or for ctx.
func (s *IntervalScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		zap.L().Info("scheduler: stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *IntervalScheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()

	t := time.NewTicker(e.every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.run(ctx, e)
		}
	}
}

func (s *IntervalScheduler) run(ctx context.Context, e entry) {
	log := zap.L().With(zap.String("job", e.name))

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	s.metrics.JobStarted()
	defer s.metrics.JobFinished()

	jctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := runSafely(jctx, e.job); err != nil {
		log.Error("scheduler: job failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	log.Debug("scheduler: job done", zap.Duration("elapsed", time.Since(start)))
}
