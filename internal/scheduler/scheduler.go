// Package scheduler drives recurring ingestion: each tick computes the due
// set and fans it out to bounded concurrent jobs, one in flight per source,
// funneling every outcome to the health tracker.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/ingest"
)

// JobRunner executes one ingestion attempt for one source. It must never
// panic as API contract, but the scheduler guards against it anyway.
type JobRunner interface {
	RunJob(ctx context.Context, src ingest.Source) ingest.Job
}

// OutcomeSink consumes job outcomes; implemented by the health tracker.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, job ingest.Job) (ingest.Source, error)
}

// Config controls cadence and concurrency.
type Config struct {
	TickInterval time.Duration
	// MaxConcurrent bounds the number of jobs in flight across all sources.
	MaxConcurrent int
	// JobTimeout is the overall budget for one job including fetches,
	// renders, and any LLM round-trips.
	JobTimeout time.Duration
	// ShutdownGrace is how long in-flight jobs may keep running after the
	// run context ends before they are cancelled.
	ShutdownGrace time.Duration
	// DefaultInterval applies to sources without an explicit fetch interval.
	DefaultInterval time.Duration
}

// Scheduler is the top-level orchestrator.
type Scheduler struct {
	sources ingest.SourceStore
	runner  JobRunner
	sink    OutcomeSink
	clock   ingest.Clock
	cfg     Config
	logger  *zap.Logger

	sem chan struct{}

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup

	// jobCtx outlives the run context so in-flight jobs can drain during
	// the shutdown grace period.
	jobCtx    context.Context
	jobCancel context.CancelFunc
}

// New constructs a Scheduler.
func New(
	sources ingest.SourceStore,
	runner JobRunner,
	sink OutcomeSink,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 30 * time.Minute
	}
	jobCtx, jobCancel := context.WithCancel(context.Background())
	return &Scheduler{
		sources:   sources,
		runner:    runner,
		sink:      sink,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		running:   make(map[string]struct{}),
		jobCtx:    jobCtx,
		jobCancel: jobCancel,
	}
}

// Run ticks until ctx finishes, then drains. In-flight jobs get the grace
// period to complete before cooperative cancellation; no new ticks fire
// once shutdown begins.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx, s.clock.Now())
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-ticker.C:
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// Tick examines all sources, computes the due set, and dispatches jobs up
// to the concurrency limit. A source with a job still running is skipped,
// not duplicated. Safe to call concurrently; single-flight holds.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due, err := s.sources.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("list due sources failed", zap.Error(err))
		return
	}

	due = s.filterByInterval(due, now)
	sortDue(due)

	for _, src := range due {
		if !s.tryDispatch(src) {
			// Pool exhausted; the rest of the due set stays due and is
			// picked up next tick in the same starvation-avoiding order.
			return
		}
	}
}

func (s *Scheduler) filterByInterval(due []ingest.Source, now time.Time) []ingest.Source {
	eligible := due[:0]
	for _, src := range due {
		interval := src.FetchInterval
		if interval <= 0 {
			interval = s.cfg.DefaultInterval
		}
		if src.LastAttempt.IsZero() || now.Sub(src.LastAttempt) >= interval {
			eligible = append(eligible, src)
		}
	}
	return eligible
}

// sortDue orders by oldest last attempt first, ties broken by source ID
// for determinism.
func sortDue(due []ingest.Source) {
	sort.Slice(due, func(i, j int) bool {
		if !due[i].LastAttempt.Equal(due[j].LastAttempt) {
			return due[i].LastAttempt.Before(due[j].LastAttempt)
		}
		return due[i].ID < due[j].ID
	})
}

// tryDispatch starts a job for the source unless it is already running or
// the pool is full. Returns false only when the pool is full.
func (s *Scheduler) tryDispatch(src ingest.Source) bool {
	s.mu.Lock()
	if _, inFlight := s.running[src.ID]; inFlight {
		s.mu.Unlock()
		return true
	}
	select {
	case s.sem <- struct{}{}:
	default:
		s.mu.Unlock()
		return false
	}
	s.running[src.ID] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runOne(src)
	return true
}

func (s *Scheduler) runOne(src ingest.Source) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, src.ID)
		s.mu.Unlock()
		<-s.sem
	}()

	jobCtx, cancel := context.WithTimeout(s.jobCtx, s.cfg.JobTimeout)
	defer cancel()

	job := s.executeGuarded(jobCtx, src)

	ingest.JobsTotal.WithLabelValues(string(job.Outcome)).Inc()
	ingest.JobDuration.Observe(job.Duration.Seconds())

	// Outcome recording uses its own context so a timed-out job still
	// lands its failure in the health tracker.
	recordCtx, recordCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer recordCancel()
	if _, err := s.sink.RecordOutcome(recordCtx, job); err != nil {
		s.logger.Error("record job outcome failed",
			zap.String("source_id", job.SourceID),
			zap.Error(err),
		)
	}
}

// executeGuarded converts a runner panic into a failed job instead of
// letting it kill the scheduler.
func (s *Scheduler) executeGuarded(ctx context.Context, src ingest.Source) (job ingest.Job) {
	started := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("source_id", src.ID),
				zap.Any("panic", r),
			)
			job = ingest.Job{
				SourceID:  src.ID,
				StartedAt: started,
				Outcome:   ingest.OutcomeTransientFailure,
				ErrorKind: ingest.KindTransient,
				Duration:  s.clock.Now().Sub(started),
			}
		}
	}()
	return s.runner.RunJob(ctx, src)
}

// drain waits out the grace period, then cancels what is left and waits
// for all jobs to return.
func (s *Scheduler) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("shutdown grace elapsed, cancelling in-flight jobs")
		s.jobCancel()
		<-done
	}
	s.jobCancel()
}
