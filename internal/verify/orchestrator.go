// Package verify runs one tier invocation of the signal lifecycle: select
// the events in a tier, gather and judge raw signals for their venues, and
// persist the derivative confidence and QoE scores.
package verify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mosport/venue-signal/internal/cache"
	"github.com/mosport/venue-signal/internal/lifecycle"
	"github.com/mosport/venue-signal/internal/metrics"
	"github.com/mosport/venue-signal/internal/model"
)

// DefaultOverrideReason is written to events cancelled by an override.
const DefaultOverrideReason = "Venue reported unavailable"

// DefaultSocialKeywords confirm a WARM event when no post names it.
var DefaultSocialKeywords = []string{"live", "match", "kick off", "kickoff", "watching", "game on"}

// Store is the slice of the durable store the orchestrator depends on.
type Store interface {
	ListEventsByStatus(ctx context.Context, statuses []model.EventStatus) ([]model.Event, error)
	ListVenueLinks(ctx context.Context, eventID string) ([]model.VenueLink, error)
	UpdateEventConfidence(ctx context.Context, eventID string, confidence float64, verifiedAt time.Time) error
	CancelEvent(ctx context.Context, eventID, reason string) error
	MarkSocialConfirmed(ctx context.Context, venueID, eventID string, at time.Time) error
	UpdateVenueQoE(ctx context.Context, venueID string, score float64) error
	RecordTierRun(ctx context.Context, run model.TierRun) error
}

// Fetcher returns recent raw signals for a venue, most recent first. It
// never fails; an unreachable source yields no items.
type Fetcher interface {
	FetchRecent(ctx context.Context, venueID string, limit int) []model.RawSignal
}

// Judge scores one raw signal. It archives the item before judging and
// substitutes a neutral result on failure.
type Judge interface {
	Analyze(ctx context.Context, venueID string, item model.RawSignal) model.Analysis
}

// Config tunes one orchestrator.
type Config struct {
	HotFetchLimit    int
	WarmFetchLimit   int
	EventConcurrency int
	VenueConcurrency int
	OverrideReason   string
	TagsTTL          time.Duration
	SocialKeywords   []string
}

func (c Config) withDefaults() Config {
	if c.HotFetchLimit <= 0 {
		c.HotFetchLimit = 3
	}
	if c.WarmFetchLimit <= 0 {
		c.WarmFetchLimit = 5
	}
	if c.EventConcurrency <= 0 {
		c.EventConcurrency = 4
	}
	if c.VenueConcurrency <= 0 {
		c.VenueConcurrency = 4
	}
	if c.OverrideReason == "" {
		c.OverrideReason = DefaultOverrideReason
	}
	if c.TagsTTL <= 0 {
		c.TagsTTL = cache.TTLSemiDynamic
	}
	if c.SocialKeywords == nil {
		c.SocialKeywords = DefaultSocialKeywords
	}
	return c
}

// Orchestrator is the body of every tier job. It keeps no state between
// invocations apart from the per-venue write locks.
type Orchestrator struct {
	store     Store
	fetcher   Fetcher
	judge     Judge
	cache     cache.Cache
	predictor Predictor
	metrics   *metrics.Metrics
	cfg       Config
	now       func() time.Time
	venueMu   *keyedMutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPredictor installs the COOL/COLD prediction hook.
func WithPredictor(p Predictor) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.predictor = p
		}
	}
}

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the wall clock (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(st Store, f Fetcher, j Judge, c cache.Cache, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		fetcher:   f,
		judge:     j,
		cache:     c,
		predictor: NopPredictor{},
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		venueMu:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// JobFor returns the scheduler job for tier. The job fails only when
// selection fails.
func (o *Orchestrator) JobFor(tier model.Tier) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := o.ProcessTier(ctx, tier)
		return err
	}
}

// ProcessTier runs one invocation for tier. Per-event failures are counted
// in the returned run; the error is non-nil only for ErrSelection.
func (o *Orchestrator) ProcessTier(ctx context.Context, tier model.Tier) (model.TierRun, error) {
	log := zap.L().With(zap.String("component", "verify"), zap.String("tier", string(tier)))
	run := model.TierRun{ID: uuid.New().String(), Tier: tier, StartedAt: o.now().UTC()}

	events, err := o.store.ListEventsByStatus(ctx, model.ActiveEventStatuses)
	if err != nil {
		selErr := newError(ErrSelection, "", err)
		log.Error("tier selection failed", zap.Error(err))
		run.Message = selErr.Error()
		o.finish(ctx, &run)
		return run, selErr
	}

	now := o.now().UTC()
	var selected []model.Event
	for _, e := range events {
		if lifecycle.TierOf(e.StartTime, e.Status, now) == tier {
			selected = append(selected, e)
		}
	}
	run.Selected = len(selected)
	log.Info("tier selected", zap.Int("events", len(selected)), zap.Int("active", len(events)))

	var processed, failed, overrides atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.EventConcurrency)
	for _, ev := range selected {
		g.Go(func() error {
			overridden, err := o.processEvent(gctx, tier, ev)
			if overridden {
				overrides.Add(1)
			}
			if err != nil {
				log.Error("event failed", zap.String("event_id", ev.ID), zap.Error(err))
				failed.Add(1)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	run.Success = true
	run.Processed = int(processed.Load())
	run.Failed = int(failed.Load())
	run.Overrides = int(overrides.Load())
	run.Message = fmt.Sprintf("processed %d/%d", run.Processed, run.Selected)
	o.finish(ctx, &run)

	log.Info("tier complete",
		zap.Int("selected", run.Selected),
		zap.Int("processed", run.Processed),
		zap.Int("failed", run.Failed),
		zap.Int("overrides", run.Overrides),
		zap.Duration("elapsed", run.Duration()),
	)
	return run, nil
}

// finish stamps, logs and exports the run. Recording is fail-soft and
// survives cancellation of the job context.
func (o *Orchestrator) finish(ctx context.Context, run *model.TierRun) {
	run.CompletedAt = o.now().UTC()
	o.metrics.ObserveTierRun(string(run.Tier), run.Success, run.Processed, run.Failed, run.Duration(), run.CompletedAt)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.store.RecordTierRun(rctx, *run); err != nil {
		zap.L().Warn("record tier run failed", zap.String("tier", string(run.Tier)), zap.Error(err))
	}
}

// processEvent dispatches one event to its tier branch and converts panics
// into per-event failures.
func (o *Orchestrator) processEvent(ctx context.Context, tier model.Tier, ev model.Event) (overridden bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("event panicked",
				zap.String("event_id", ev.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = newError(ErrPerEvent, ev.ID, eris.Errorf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return false, newError(ErrPerEvent, ev.ID, err)
	}

	switch tier {
	case model.TierHot:
		return o.verifyLive(ctx, ev)
	case model.TierWarm:
		return false, o.confirmSocial(ctx, ev)
	default:
		if err := o.predictor.Predict(ctx, tier, ev); err != nil {
			return false, newError(ErrPerEvent, ev.ID, err)
		}
		return false, nil
	}
}

// TriggerOverride cancels the event with the configured reason. Cancellation
// is terminal: selection never returns cancelled events.
func (o *Orchestrator) TriggerOverride(ctx context.Context, eventID string) error {
	if err := o.store.CancelEvent(ctx, eventID, o.cfg.OverrideReason); err != nil {
		return newError(ErrPersistence, eventID, err)
	}
	o.metrics.IncOverride()
	zap.L().Warn("event cancelled by override",
		zap.String("component", "verify"),
		zap.String("event_id", eventID),
		zap.String("reason", o.cfg.OverrideReason),
	)
	return nil
}
