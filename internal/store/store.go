// Package store persists events, venues, their links and the tier run log.
// Only derivative values (confidence, QoE, timestamps) are ever written by
// the verification pipeline; raw signal content never reaches this layer.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mosport/venue-signal/internal/model"
)

const (
	defaultCandidateLimit = 100
	defaultLiveThreshold  = 0.85
)

// ErrNotFound is returned when a lookup or update targets a missing row.
var ErrNotFound = eris.New("store: not found")

// CandidateQuery selects venues for the ranking engine.
type CandidateQuery struct {
	Text string
	// LiveFrom and LiveTo bound the start time of scheduled events counted
	// toward a venue's live confidence. Events with status live always count.
	LiveFrom time.Time
	LiveTo   time.Time
	// LiveThreshold is the live confidence at which a venue is kept ahead
	// of text matches when the result is capped. Zero means 0.85.
	LiveThreshold float64
	Max           int
}

func (q CandidateQuery) liveThreshold() float64 {
	if q.LiveThreshold <= 0 {
		return defaultLiveThreshold
	}
	return q.LiveThreshold
}

// isLive reports whether conf puts a candidate in the live group.
func (q CandidateQuery) isLive(conf float64) bool {
	return conf > 0 && conf >= q.liveThreshold()
}

// Store defines the persistence interface for the verification pipeline and
// the search read paths.
type Store interface {
	// Events and links
	ListEventsByStatus(ctx context.Context, statuses []model.EventStatus) ([]model.Event, error)
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	ListVenueLinks(ctx context.Context, eventID string) ([]model.VenueLink, error)
	UpdateEventConfidence(ctx context.Context, eventID string, confidence float64, verifiedAt time.Time) error
	// CancelEvent moves a scheduled or live event to cancelled. Events already
	// finished or cancelled are left untouched.
	CancelEvent(ctx context.Context, eventID, reason string) error
	MarkSocialConfirmed(ctx context.Context, venueID, eventID string, at time.Time) error

	// Venues
	GetVenue(ctx context.Context, venueID string) (*model.Venue, error)
	UpdateVenueQoE(ctx context.Context, venueID string, score float64) error

	// Search read paths
	SearchCandidates(ctx context.Context, q CandidateQuery) ([]model.VenueCandidate, error)
	ListLinkedVenueTags(ctx context.Context, from, to time.Time) ([]model.TaggedVenue, error)
	ListUpcomingEvents(ctx context.Context, from, to time.Time, limit int) ([]model.TrendingEvent, error)
	ListVenuesByTag(ctx context.Context, tag string, verifiedOnly bool) ([]model.Venue, error)

	// Tier run log
	RecordTierRun(ctx context.Context, run model.TierRun) error
	ListTierRuns(ctx context.Context, tier model.Tier, limit int) ([]model.TierRun, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func statusStrings(statuses []model.EventStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Seeder loads reference rows owned by the external CRUD layer. It backs the
// seed command for local environments and integration tests.
type Seeder interface {
	UpsertVenue(ctx context.Context, v model.Venue) error
	UpsertEvent(ctx context.Context, e model.Event) error
	UpsertLink(ctx context.Context, l model.VenueLink) error
}
