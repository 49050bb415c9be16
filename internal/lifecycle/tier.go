// Package lifecycle classifies events into urgency tiers based on how close
// they are to kick-off.
package lifecycle

import (
	"time"

	"github.com/mosport/venue-signal/internal/model"
)

// Tier window boundaries relative to the event start time.
const (
	HotLookback  = 3 * time.Hour
	HotLookahead = 2 * time.Hour
	WarmHorizon  = 24 * time.Hour
	CoolHorizon  = 7 * 24 * time.Hour
)

// Default re-check frequency per tier.
const (
	FreqHot  = 5 * time.Minute
	FreqWarm = time.Hour
	FreqCool = 6 * time.Hour
	FreqCold = 24 * time.Hour
)

// TierOf returns the tier for an event starting at start with the given
// status, evaluated at now. It is pure: the same inputs always yield the
// same tier.
//
// Events that started more than HotLookback ago without being marked
// finished or cancelled fall through to COLD.
func TierOf(start time.Time, status model.EventStatus, now time.Time) model.Tier {
	if status == model.EventStatusLive {
		return model.TierHot
	}

	delta := start.UTC().Sub(now.UTC())
	switch {
	case delta >= -HotLookback && delta <= HotLookahead:
		return model.TierHot
	case delta > HotLookahead && delta <= WarmHorizon:
		return model.TierWarm
	case delta > WarmHorizon && delta <= CoolHorizon:
		return model.TierCool
	default:
		return model.TierCold
	}
}

// Current classifies against the current UTC instant.
func Current(start time.Time, status model.EventStatus) model.Tier {
	return TierOf(start, status, time.Now().UTC())
}

// Frequency returns the default re-check interval for a tier.
func Frequency(tier model.Tier) time.Duration {
	switch tier {
	case model.TierHot:
		return FreqHot
	case model.TierWarm:
		return FreqWarm
	case model.TierCool:
		return FreqCool
	default:
		return FreqCold
	}
}

// NextCheck returns how long to wait before re-checking an event.
func NextCheck(start time.Time, status model.EventStatus, now time.Time) time.Duration {
	return Frequency(TierOf(start, status, now))
}

// InLiveWindow reports whether the event is live or inside the HOT window.
func InLiveWindow(start time.Time, status model.EventStatus, now time.Time) bool {
	return TierOf(start, status, now) == model.TierHot
}

// LiveWindow returns the start-time range that places a scheduled event in
// the HOT tier at now.
func LiveWindow(now time.Time) (from, to time.Time) {
	now = now.UTC()
	return now.Add(-HotLookback), now.Add(HotLookahead)
}
