package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// EventStatus is the lifecycle status of a broadcast event.
type EventStatus string

const (
	EventStatusScheduled EventStatus = "scheduled"
	EventStatusLive      EventStatus = "live"
	EventStatusFinished  EventStatus = "finished"
	EventStatusCancelled EventStatus = "cancelled"
)

// ActiveEventStatuses are the statuses eligible for tier selection.
var ActiveEventStatuses = []EventStatus{EventStatusScheduled, EventStatusLive}

// Tier is the urgency class that drives how often an event is re-checked.
type Tier string

const (
	TierHot  Tier = "HOT"
	TierWarm Tier = "WARM"
	TierCool Tier = "COOL"
	TierCold Tier = "COLD"
)

// Tiers lists every tier from most to least urgent.
var Tiers = []Tier{TierHot, TierWarm, TierCool, TierCold}

// ParseTier accepts a tier label in any case.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t, nil
		}
	}
	return "", eris.Errorf("model: unknown tier %q", s)
}

// Event is a scheduled broadcast. ConfidenceScore, LastVerified and
// OverrideReason are derivative fields written only by verification.
type Event struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	League          string      `json:"league,omitempty"`
	Sport           string      `json:"sport,omitempty"`
	TeamA           string      `json:"team_a,omitempty"`
	TeamB           string      `json:"team_b,omitempty"`
	StartTime       time.Time   `json:"start_time"`
	Status          EventStatus `json:"status"`
	ConfidenceScore float64     `json:"confidence_score"`
	LastVerified    *time.Time  `json:"last_verified,omitempty"`
	OverrideReason  string      `json:"override_reason,omitempty"`
}

// LinkStatus records how a venue/event association was established.
type LinkStatus string

const (
	LinkStatusPredicted LinkStatus = "predicted"
	LinkStatusConfirmed LinkStatus = "confirmed"
	LinkStatusAuthority LinkStatus = "authority"
)

// VenueLink associates a venue with an event it is expected to show.
type VenueLink struct {
	VenueID           string     `json:"venue_id"`
	EventID           string     `json:"event_id"`
	Status            LinkStatus `json:"verification_status"`
	SocialConfirmedAt *time.Time `json:"social_confirmed_at,omitempty"`
}

// TrendingEvent is an upcoming event with the number of venues showing it.
type TrendingEvent struct {
	Event
	VenueCount int `json:"venue_count"`
}
