// Package search ranks venues for a query and serves the discovery
// surfaces: trending tags, trending events and the fallback venue list.
package search

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/config"
	"github.com/mosport/venue-signal/internal/geo"
	"github.com/mosport/venue-signal/internal/lifecycle"
	"github.com/mosport/venue-signal/internal/metrics"
	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/qoe"
	"github.com/mosport/venue-signal/internal/store"
)

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = eris.New("search: empty query")

// ErrInvalidLocation is returned for coordinates outside WGS84 bounds.
var ErrInvalidLocation = eris.New("search: invalid location")

// Store is the read side the engine needs.
type Store interface {
	SearchCandidates(ctx context.Context, q store.CandidateQuery) ([]model.VenueCandidate, error)
	ListLinkedVenueTags(ctx context.Context, from, to time.Time) ([]model.TaggedVenue, error)
	ListUpcomingEvents(ctx context.Context, from, to time.Time, limit int) ([]model.TrendingEvent, error)
	ListVenuesByTag(ctx context.Context, tag string, verifiedOnly bool) ([]model.Venue, error)
}

// Location is an optional caller position.
type Location struct {
	Lat float64
	Lon float64
}

// TagCount is one trending tag and how many upcoming venue links carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// candidatePoolFactor widens the store fetch so proximity and live boost can
// promote venues the text rank alone would cut.
const candidatePoolFactor = 5

// Engine answers search and discovery queries.
type Engine struct {
	store   Store
	weights Weights
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics counts served queries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the wall clock (for testing).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithShuffle overrides the tie-breaking shuffle for trending tags.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(e *Engine) { e.shuffle = fn }
}

// New creates an Engine. Zero config values fall back to the defaults.
func New(st Store, cfg config.SearchConfig, opts ...Option) *Engine {
	w := Weights(cfg.Weights)
	if w == (Weights{}) {
		w = DefaultWeights
	}
	if cfg.LiveConfidenceThreshold <= 0 {
		cfg.LiveConfidenceThreshold = DefaultLiveThreshold
	}
	if cfg.TrendingRadiusKM <= 0 {
		cfg.TrendingRadiusKM = 50
	}
	if cfg.TrendingWindowDays <= 0 {
		cfg.TrendingWindowDays = 7
	}
	if cfg.FallbackTag == "" {
		cfg.FallbackTag = "sports bar"
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	e := &Engine{
		store:   st,
		weights: w,
		cfg:     cfg,
		now:     time.Now,
		shuffle: rand.Shuffle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.cfg.DefaultLimit
	}
	return n
}

func (e *Engine) window() (from, to time.Time) {
	from = e.now().UTC()
	return from, from.Add(time.Duration(e.cfg.TrendingWindowDays) * 24 * time.Hour)
}

// Search ranks venues matching query for a caller at (lat, lon). Live
// confidence counts only events inside the current live window.
func (e *Engine) Search(ctx context.Context, query string, lat, lon float64, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	origin, err := geo.NewPoint(lat, lon)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidLocation, err.Error())
	}
	limit = e.limit(limit)

	from, to := lifecycle.LiveWindow(e.now())
	cands, err := e.store.SearchCandidates(ctx, store.CandidateQuery{
		Text:          query,
		LiveFrom:      from,
		LiveTo:        to,
		LiveThreshold: e.cfg.LiveConfidenceThreshold,
		Max:           max(limit*candidatePoolFactor, 100),
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: candidates")
	}
	e.metrics.IncSearch("search")

	ranked := Rank(cands, origin, e.weights, e.cfg.LiveConfidenceThreshold)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	zap.L().Debug("search served",
		zap.String("query", query),
		zap.Int("candidates", len(cands)),
		zap.Int("returned", len(ranked)),
	)
	return ranked, nil
}

// TrendingTags counts tags over venues linked to upcoming events. With a
// location only venues inside the trending radius count. Equal counts come
// back in random order.
func (e *Engine) TrendingTags(ctx context.Context, limit int, loc *Location) ([]TagCount, error) {
	limit = e.limit(limit)
	from, to := e.window()
	rows, err := e.store.ListLinkedVenueTags(ctx, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "search: trending tags")
	}
	e.metrics.IncSearch("trending_tags")

	var filter func(model.TaggedVenue) bool
	if loc != nil {
		origin, err := geo.NewPoint(loc.Lat, loc.Lon)
		if err != nil {
			return nil, eris.Wrap(ErrInvalidLocation, err.Error())
		}
		radius := e.cfg.TrendingRadiusKM
		filter = func(v model.TaggedVenue) bool {
			p, err := geo.NewPoint(v.Latitude, v.Longitude)
			return err == nil && geo.Within(origin, p, radius)
		}
	}

	counts := make(map[string]int)
	for _, r := range rows {
		if filter != nil && !filter(r) {
			continue
		}
		for _, tag := range r.Tags {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				counts[tag]++
			}
		}
	}

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	e.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TrendingEvents returns upcoming events ordered by how many venues carry
// them, earliest first among equals.
func (e *Engine) TrendingEvents(ctx context.Context, limit int) ([]model.TrendingEvent, error) {
	limit = e.limit(limit)
	from, to := e.window()
	events, err := e.store.ListUpcomingEvents(ctx, from, to, limit)
	if err != nil {
		return nil, eris.Wrap(err, "search: trending events")
	}
	e.metrics.IncSearch("trending_events")

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].VenueCount != events[j].VenueCount {
			return events[i].VenueCount > events[j].VenueCount
		}
		return events[i].StartTime.Before(events[j].StartTime)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// FallbackVenues lists verified venues carrying the fallback tag, best QoE
// first and nearest first among equals. It backs empty search results.
func (e *Engine) FallbackVenues(ctx context.Context, loc *Location, limit int) ([]Result, error) {
	limit = e.limit(limit)
	venues, err := e.store.ListVenuesByTag(ctx, e.cfg.FallbackTag, true)
	if err != nil {
		return nil, eris.Wrap(err, "search: fallback venues")
	}
	e.metrics.IncSearch("fallback")

	var origin *geom.Point
	if loc != nil {
		if origin, err = geo.NewPoint(loc.Lat, loc.Lon); err != nil {
			return nil, eris.Wrap(ErrInvalidLocation, err.Error())
		}
	}

	out := make([]Result, 0, len(venues))
	for _, v := range venues {
		r := Result{Venue: v, QoETier: qoe.ClassifyTier(v.QoEScore * qoe.MaxScore)}
		if origin != nil {
			r.setDistance(distanceFrom(origin, v))
		} else {
			r.setDistance(math.Inf(1))
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QoEScore != out[j].QoEScore {
			return out[i].QoEScore > out[j].QoEScore
		}
		return out[i].km < out[j].km
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
