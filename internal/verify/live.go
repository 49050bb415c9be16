package verify

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mosport/venue-signal/internal/cache"
	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/qoe"
)

// venueScan is the outcome of scanning one venue's recent signals.
type venueScan struct {
	venueID       string
	analyzed      int
	maxConfidence float64
	override      bool
	last          model.Analysis
}

// verifyLive is the HOT branch. Venues are scanned concurrently; the event
// confidence is the maximum over every analyzed item and is written once.
func (o *Orchestrator) verifyLive(ctx context.Context, ev model.Event) (bool, error) {
	log := zap.L().With(zap.String("component", "verify.live"), zap.String("event_id", ev.ID))

	links, err := o.store.ListVenueLinks(ctx, ev.ID)
	if err != nil {
		return false, newError(ErrPerEvent, ev.ID, err)
	}
	if len(links) == 0 {
		log.Debug("no linked venues")
		return false, nil
	}

	scans := make([]venueScan, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.VenueConcurrency)
	for i, link := range links {
		g.Go(recovered(link.VenueID, func() {
			scans[i] = o.scanVenue(gctx, link.VenueID)
			o.persistVenueQoE(gctx, scans[i])
		}))
	}
	if err := g.Wait(); err != nil {
		return false, newError(ErrPerEvent, ev.ID, err)
	}

	var (
		analyzed int
		best     float64
		override bool
	)
	for _, s := range scans {
		analyzed += s.analyzed
		if s.maxConfidence > best {
			best = s.maxConfidence
		}
		override = override || s.override
	}

	// No new evidence leaves the stored score untouched.
	if analyzed > 0 {
		if err := o.store.UpdateEventConfidence(ctx, ev.ID, best, o.now().UTC()); err != nil {
			return false, newError(ErrPersistence, ev.ID, err)
		}
		log.Info("event confidence updated", zap.Float64("confidence", best), zap.Int("items", analyzed))
	}

	if override {
		if err := o.TriggerOverride(ctx, ev.ID); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// scanVenue judges the venue's recent items in fetch order and stops at the
// first override.
func (o *Orchestrator) scanVenue(ctx context.Context, venueID string) venueScan {
	scan := venueScan{venueID: venueID}
	for _, item := range o.fetcher.FetchRecent(ctx, venueID, o.cfg.HotFetchLimit) {
		a := o.judge.Analyze(ctx, venueID, item)
		scan.analyzed++
		scan.last = a
		if a.EventConfidence > scan.maxConfidence {
			scan.maxConfidence = a.EventConfidence
		}
		if a.Override {
			scan.override = true
			break
		}
	}
	return scan
}

// persistVenueQoE derives the venue's tags from the last analyzed item,
// caches them and writes the normalized score. Writers for the same venue
// are serialized; a failure keeps the previous score.
func (o *Orchestrator) persistVenueQoE(ctx context.Context, scan venueScan) {
	if scan.analyzed == 0 {
		return
	}
	log := zap.L().With(zap.String("component", "verify.live"), zap.String("venue_id", scan.venueID))

	tags := qoe.TagsFromAnalysis(scan.last)
	score := qoe.Score(tags)

	unlock := o.venueMu.Lock(scan.venueID)
	defer unlock()

	if err := cache.SetJSON(ctx, o.cache, cache.QoETagsKey(scan.venueID), tags, o.cfg.TagsTTL); err != nil {
		log.Warn("cache qoe tags failed", zap.Error(err))
	}
	if err := o.store.UpdateVenueQoE(ctx, scan.venueID, qoe.Normalize(score)); err != nil {
		log.Error("venue qoe not persisted", zap.Error(newError(ErrPersistence, "", err)))
		return
	}
	log.Debug("venue qoe updated", zap.Float64("score", score), zap.String("tier", qoe.ClassifyTier(score)))
}
