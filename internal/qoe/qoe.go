// Package qoe computes the venue quality-of-experience score from a small
// derivative tag set.
package qoe

import (
	"github.com/mosport/venue-signal/internal/model"
)

// Component caps. They sum to MaxScore.
const (
	LivenessPoints = 25

	VisualBigScreenPoints = 30
	VisualStandardPoints  = 15

	AudioSoundOnPoints    = 25
	AudioBackgroundPoints = 10

	VibeRowdyPoints = 20
	VibeChillPoints = 10

	MaxScore = 100
)

// Tier labels for a QoE score.
const (
	TierPremium    = "Premium"
	TierStandard   = "Standard"
	TierBasic      = "Basic"
	TierUnverified = "Unverified"
)

// Importance of an event, used by ShouldRecommend.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceNormal Importance = "normal"
	ImportanceLow    Importance = "low"
)

// Score returns a 0-100 score as the unweighted sum of four capped
// components. Unknown enum values contribute nothing.
func Score(tags model.QoETags) float64 {
	var score float64
	if tags.Liveness {
		score += LivenessPoints
	}

	switch tags.Visual {
	case model.VisualBigScreen:
		score += VisualBigScreenPoints
	case model.VisualStandard:
		score += VisualStandardPoints
	}

	switch tags.Audio {
	case model.AudioSoundOn:
		score += AudioSoundOnPoints
	case model.AudioBackground:
		score += AudioBackgroundPoints
	}

	switch tags.Vibe {
	case model.VibeRowdy:
		score += VibeRowdyPoints
	case model.VibeChill:
		score += VibeChillPoints
	}

	return score
}

// Normalize maps a 0-100 score onto the 0.0-1.0 range stored on venues.
func Normalize(score float64) float64 {
	switch {
	case score <= 0:
		return 0
	case score >= MaxScore:
		return 1
	default:
		return score / MaxScore
	}
}

// ClassifyTier buckets a 0-100 score. Thresholds are inclusive.
func ClassifyTier(score float64) string {
	switch {
	case score >= 80:
		return TierPremium
	case score >= 60:
		return TierStandard
	case score >= 40:
		return TierBasic
	default:
		return TierUnverified
	}
}

// threshold returns the minimum score to recommend a venue for an event of
// the given importance. Unknown importance uses the normal threshold.
func threshold(importance Importance) float64 {
	switch importance {
	case ImportanceHigh:
		return 80
	case ImportanceLow:
		return 40
	default:
		return 60
	}
}

// ShouldRecommend reports whether score clears the gate for importance.
func ShouldRecommend(score float64, importance Importance) bool {
	return score >= threshold(importance)
}

// TagsFromAnalysis derives the QoE tag set from one analyzer result. Vibe
// needs longer-term observation than a single post, so it stays none.
func TagsFromAnalysis(a model.Analysis) model.QoETags {
	tags := model.QoETags{
		Liveness: a.HasLiveEvent,
		Visual:   a.Visual,
		Audio:    a.Audio,
		Vibe:     model.VibeNone,
	}
	if tags.Visual == "" {
		tags.Visual = model.VisualNone
	}
	if tags.Audio == "" {
		tags.Audio = model.AudioNone
	}
	return tags
}
