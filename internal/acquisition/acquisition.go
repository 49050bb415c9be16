// Package acquisition fetches recent raw social items for a venue. Callers
// go through Acquirer, which never fails: any error becomes an empty batch.
package acquisition

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/metrics"
	"github.com/mosport/venue-signal/internal/model"
)

// Source is an upstream of raw venue posts. Implementations may fail.
type Source interface {
	Recent(ctx context.Context, venueID string, limit int) ([]model.RawSignal, error)
}

// Acquirer bounds every fetch with a timeout and turns failures into
// "no signal".
type Acquirer struct {
	src     Source
	timeout time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewAcquirer wraps src. A non-positive timeout defaults to 10s.
func NewAcquirer(src Source, timeout time.Duration, m *metrics.Metrics) *Acquirer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Acquirer{
		src:     src,
		timeout: timeout,
		metrics: m,
		log:     zap.L().With(zap.String("component", "acquisition")),
	}
}

// FetchRecent returns up to limit items for venueID, most recent first.
// The result is empty, never nil-with-error, when the source fails.
func (a *Acquirer) FetchRecent(ctx context.Context, venueID string, limit int) []model.RawSignal {
	if limit <= 0 {
		return nil
	}

	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	items, err := a.src.Recent(fctx, venueID, limit)
	if err != nil {
		a.metrics.IncAcquisitionFailure()
		a.log.Warn("fetch failed, treating as no signal",
			zap.String("venue_id", venueID),
			zap.Error(err),
		)
		return nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CapturedAt.After(items[j].CapturedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Nop is a Source with no data, used when no upstream is configured.
type Nop struct{}

func (Nop) Recent(context.Context, string, int) ([]model.RawSignal, error) { return nil, nil }

// Static serves fixed items per venue. Useful for local runs and tests.
type Static map[string][]model.RawSignal

func (s Static) Recent(_ context.Context, venueID string, _ int) ([]model.RawSignal, error) {
	items := s[venueID]
	out := make([]model.RawSignal, len(items))
	copy(out, items)
	return out, nil
}
