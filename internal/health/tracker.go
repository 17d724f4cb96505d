// Package health tracks per-source health as a small state machine driven
// by job outcomes: healthy, degraded, failing, disabled. Success recovers
// fast, failure degrades slowly, biasing toward availability.
package health

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Config sets transition thresholds and the backoff schedule.
type Config struct {
	// DegradedAfter, FailingAfter and DisableAfter are consecutive-failure
	// counts; they must be strictly increasing.
	DegradedAfter int
	FailingAfter  int
	DisableAfter  int

	BackoffBase time.Duration
	BackoffCap  time.Duration
	// RateLimitFloor is the minimum backoff after a rate-limited failure;
	// providers that said 429 should not be retried on the generic curve.
	RateLimitFloor time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		DegradedAfter:  2,
		FailingAfter:   5,
		DisableAfter:   10,
		BackoffBase:    time.Minute,
		BackoffCap:     6 * time.Hour,
		RateLimitFloor: 15 * time.Minute,
	}
}

// Tracker applies job outcomes to source records. All mutation is scoped
// to a single source; single-flight upstream guarantees no two outcomes
// for the same source are in flight at once.
type Tracker struct {
	cfg     Config
	sources ingest.SourceStore
	clock   ingest.Clock
	logger  *zap.Logger
}

// New constructs a Tracker.
func New(cfg Config, sources ingest.SourceStore, clock ingest.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:     cfg,
		sources: sources,
		clock:   clock,
		logger:  logger,
	}
}

// RecordOutcome folds one job outcome into the source's health state and
// persists the result. Transitions are explicit and logged; a source never
// changes status silently.
func (t *Tracker) RecordOutcome(ctx context.Context, job ingest.Job) (ingest.Source, error) {
	src, err := t.sources.Load(ctx, job.SourceID)
	if err != nil {
		return ingest.Source{}, fmt.Errorf("load source %s: %w", job.SourceID, err)
	}

	prev := src.Status
	t.apply(&src, job)
	src.LastAttempt = job.StartedAt
	src.UpdatedAt = t.clock.Now()

	if err := t.sources.Save(ctx, src); err != nil {
		return ingest.Source{}, fmt.Errorf("save source %s: %w", src.ID, err)
	}

	if src.Status != prev {
		ingest.SourceTransitionsTotal.WithLabelValues(string(prev), string(src.Status)).Inc()
		t.logger.Info("source status transition",
			zap.String("source_id", src.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(src.Status)),
			zap.Int("consecutive_failures", src.ConsecutiveFailures),
			zap.String("error_kind", string(job.ErrorKind)),
		)
	}
	return src, nil
}

func (t *Tracker) apply(src *ingest.Source, job ingest.Job) {
	if job.Outcome == ingest.OutcomeSuccess {
		src.ConsecutiveFailures = 0
		src.ConsecutiveSuccesses++
		src.BackoffUntil = time.Time{}
		src.LastError = ""
		// One success moves a non-healthy source straight back to healthy.
		// Disabled is terminal for the tracker; reactivation is an explicit
		// external action.
		if src.Status == ingest.StatusDegraded || src.Status == ingest.StatusFailing {
			src.Status = ingest.StatusHealthy
		}
		return
	}

	src.ConsecutiveSuccesses = 0
	src.ConsecutiveFailures++
	src.LastError = string(job.ErrorKind)

	if job.Outcome == ingest.OutcomePermanentFailure {
		src.Status = ingest.StatusDisabled
		return
	}

	switch {
	case src.Status == ingest.StatusDisabled:
		// stays disabled
	case src.ConsecutiveFailures >= t.cfg.DisableAfter:
		src.Status = ingest.StatusDisabled
	case src.ConsecutiveFailures >= t.cfg.FailingAfter:
		src.Status = ingest.StatusFailing
	case src.ConsecutiveFailures >= t.cfg.DegradedAfter:
		src.Status = ingest.StatusDegraded
	}

	if src.Status != ingest.StatusDisabled {
		src.BackoffUntil = t.clock.Now().Add(t.backoff(src.ConsecutiveFailures, job.ErrorKind))
	}
}

// Delay returns the deterministic backoff for a failure count:
// min(base * 2^n, cap). Jitter is layered on top separately so the curve
// itself stays monotonic and bounded.
func (t *Tracker) Delay(consecutiveFailures int) time.Duration {
	if consecutiveFailures < 0 {
		consecutiveFailures = 0
	}
	delay := t.cfg.BackoffBase
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay >= t.cfg.BackoffCap {
			return t.cfg.BackoffCap
		}
	}
	if delay > t.cfg.BackoffCap {
		delay = t.cfg.BackoffCap
	}
	return delay
}

func (t *Tracker) backoff(consecutiveFailures int, kind ingest.ErrorKind) time.Duration {
	delay := t.Delay(consecutiveFailures)
	if kind == ingest.KindRateLimited && delay < t.cfg.RateLimitFloor {
		delay = t.cfg.RateLimitFloor
	}
	total := delay + randomJitter(delay/4)
	if total > t.cfg.BackoffCap {
		total = t.cfg.BackoffCap
	}
	return total
}

// Status returns the aggregate health view for the API layer.
func (t *Tracker) Status(ctx context.Context, sourceID string) (ingest.StatusReport, error) {
	src, err := t.sources.Load(ctx, sourceID)
	if err != nil {
		return ingest.StatusReport{}, fmt.Errorf("load source %s: %w", sourceID, err)
	}
	return ingest.StatusReport{
		SourceID:     src.ID,
		Status:       src.Status,
		LastAttempt:  src.LastAttempt,
		LastError:    src.LastError,
		BackoffUntil: src.BackoffUntil,
	}, nil
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
