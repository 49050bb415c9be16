package search

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/mosport/venue-signal/internal/geo"
	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/qoe"
)

// Weights are the composite ranking coefficients. LiveBoost is applied as a
// separate sort key ahead of the composite.
type Weights struct {
	TextRank  float64
	Proximity float64
	QoE       float64
	Live      float64
	LiveBoost float64
}

// DefaultWeights: 0.4·text + 0.3·proximity + 0.2·(QoE/10) + 1.0·live, with a
// live boost of 10.
var DefaultWeights = Weights{TextRank: 0.4, Proximity: 0.3, QoE: 0.2, Live: 1.0, LiveBoost: 10}

// DefaultLiveThreshold is the live confidence at which a venue counts as
// broadcasting.
const DefaultLiveThreshold = 0.85

// Result is one ranked venue.
type Result struct {
	model.Venue
	DistanceKM     float64 `json:"distance_km"`
	TextRank       float64 `json:"text_rank"`
	LiveConfidence float64 `json:"live_confidence"`
	IsLive         bool    `json:"is_live"`
	LiveBoost      float64 `json:"live_boost"`
	Score          float64 `json:"score"`
	QoETier        string  `json:"qoe_tier"`

	km float64
}

// UnknownDistance marks a venue whose distance could not be computed.
const UnknownDistance = -1

func (r *Result) setDistance(km float64) {
	r.km = km
	r.DistanceKM = km
	if math.IsInf(km, 1) {
		r.DistanceKM = UnknownDistance
	}
}

// Proximity decays with distance and saturates at 1 inside the first km.
func Proximity(km float64) float64 {
	if math.IsInf(km, 1) || math.IsNaN(km) {
		return 0
	}
	return 1 / math.Max(1, km)
}

// Composite is the weighted score used after the live boost. qoeScore is the
// normalized 0-1 venue score.
func (w Weights) Composite(textRank, km, qoeScore float64, live bool) float64 {
	liveInd := 0.0
	if live {
		liveInd = 1
	}
	return w.TextRank*textRank +
		w.Proximity*Proximity(km) +
		w.QoE*(qoeScore/10) +
		w.Live*liveInd
}

// distanceFrom returns the great-circle distance to v, or +Inf when the
// venue has no usable coordinates.
func distanceFrom(origin *geom.Point, v model.Venue) float64 {
	p, err := geo.NewPoint(v.Latitude, v.Longitude)
	if err != nil {
		return math.Inf(1)
	}
	return geo.DistanceKM(origin, p)
}

// Rank scores candidates against origin and orders them by live boost, then
// composite score, then distance. Venue ID breaks any remaining tie so the
// order is deterministic.
func Rank(cands []model.VenueCandidate, origin *geom.Point, w Weights, liveThreshold float64) []Result {
	out := make([]Result, 0, len(cands))
	for _, c := range cands {
		km := distanceFrom(origin, c.Venue)
		live := c.LiveConfidence > 0 && c.LiveConfidence >= liveThreshold
		r := Result{
			Venue:          c.Venue,
			TextRank:       c.TextRank,
			LiveConfidence: c.LiveConfidence,
			IsLive:         live,
			Score:          w.Composite(c.TextRank, km, c.QoEScore, live),
			QoETier:        qoe.ClassifyTier(c.QoEScore * qoe.MaxScore),
		}
		r.setDistance(km)
		if live {
			r.LiveBoost = w.LiveBoost
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LiveBoost != b.LiveBoost {
			return a.LiveBoost > b.LiveBoost
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.km != b.km {
			return a.km < b.km
		}
		return a.ID < b.ID
	})
	return out
}
