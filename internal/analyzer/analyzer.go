// Package analyzer turns one raw venue post into a structured trust
// verdict. Raw content is archived to the expiring cache here and goes no
// further; only the returned model.Analysis may reach durable storage.
package analyzer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/cache"
	"github.com/mosport/venue-signal/internal/metrics"
	"github.com/mosport/venue-signal/internal/model"
)

// Backend judges a post. Implementations may fail; Analyzer absorbs it.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, text, imageRef string) (model.Analysis, error)
}

// Analyzer archives each item and runs it through a backend under a timeout.
type Analyzer struct {
	backend Backend
	cache   cache.Cache
	rawTTL  time.Duration
	timeout time.Duration
	metrics *metrics.Metrics
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRawTTL overrides how long archived raw items live.
func WithRawTTL(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.rawTTL = d
		}
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMetrics records analysis failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// New creates an Analyzer.
func New(backend Backend, c cache.Cache, opts ...Option) *Analyzer {
	a := &Analyzer{
		backend: backend,
		cache:   c,
		rawTTL:  cache.TTLRaw,
		timeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Backend returns the configured backend name.
func (a *Analyzer) Backend() string { return a.backend.Name() }

// Analyze archives item under the venue's raw key, then judges it. Backend
// errors and timeouts yield model.NeutralAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, venueID string, item model.RawSignal) model.Analysis {
	log := zap.L().With(
		zap.String("component", "analyzer"),
		zap.String("venue_id", venueID),
		zap.String("item_id", item.ID),
	)

	if err := cache.SetJSON(ctx, a.cache, cache.RawSignalKey(venueID, item.ID), item, a.rawTTL); err != nil {
		log.Warn("archive raw item failed", zap.Error(err))
	}

	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.backend.Analyze(actx, item.Text, item.ImageRef)
	if err != nil {
		a.metrics.IncAnalysisFailure(a.backend.Name())
		log.Warn("analysis failed, using neutral result",
			zap.String("backend", a.backend.Name()),
			zap.Error(err),
		)
		return model.NeutralAnalysis()
	}

	if res.Override {
		log.Warn("override detected", zap.Strings("keywords", res.DetectedKeywords))
	}
	log.Debug("analyzed", zap.Float64("confidence", res.EventConfidence), zap.Bool("override", res.Override))
	return res
}
