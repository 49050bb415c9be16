package verify

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/textmatch"
)

// confirmSocial is the WARM branch. A venue is socially confirmed when any
// recent post names the event or uses a generic live-match phrase. The event
// confidence is left alone.
func (o *Orchestrator) confirmSocial(ctx context.Context, ev model.Event) error {
	log := zap.L().With(zap.String("component", "verify.social"), zap.String("event_id", ev.ID))

	links, err := o.store.ListVenueLinks(ctx, ev.ID)
	if err != nil {
		return newError(ErrPerEvent, ev.ID, err)
	}

	phrases := append([]string{ev.Title}, o.cfg.SocialKeywords...)
	confirmed := make([]bool, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.VenueConcurrency)
	for i, link := range links {
		g.Go(recovered(link.VenueID, func() {
			for _, item := range o.fetcher.FetchRecent(gctx, link.VenueID, o.cfg.WarmFetchLimit) {
				if textmatch.ContainsAny(item.Text, phrases) {
					confirmed[i] = true
					break
				}
			}
		}))
	}
	if err := g.Wait(); err != nil {
		return newError(ErrPerEvent, ev.ID, err)
	}

	at := o.now().UTC()
	var firstErr error
	for i, link := range links {
		if !confirmed[i] {
			continue
		}
		if err := o.store.MarkSocialConfirmed(ctx, link.VenueID, ev.ID, at); err != nil {
			log.Error("social confirmation not persisted", zap.String("venue_id", link.VenueID), zap.Error(err))
			if firstErr == nil {
				firstErr = newError(ErrPersistence, ev.ID, err)
			}
			continue
		}
		log.Info("socially confirmed", zap.String("venue_id", link.VenueID))
	}
	return firstErr
}
