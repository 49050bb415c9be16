package model

import "time"

// RawSignal is an unstructured piece of evidence such as a social post.
// It lives only in the expiring cache and never reaches the durable store.
type RawSignal struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	ImageRef   string    `json:"image_ref,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Visual describes how the venue shows the broadcast.
type Visual string

const (
	VisualBigScreen Visual = "big-screen"
	VisualStandard  Visual = "standard"
	VisualNone      Visual = "none"
)

// Audio describes whether commentary is audible.
type Audio string

const (
	AudioSoundOn    Audio = "sound-on"
	AudioBackground Audio = "background"
	AudioNone       Audio = "none"
)

// Vibe describes the crowd atmosphere.
type Vibe string

const (
	VibeRowdy Vibe = "rowdy"
	VibeChill Vibe = "chill"
	VibeNone  Vibe = "none"
)

// QoETags is the derivative tag set a QoE score is computed from. Empty
// enum values are treated as none.
type QoETags struct {
	Liveness bool   `json:"liveness"`
	Visual   Visual `json:"visual"`
	Audio    Audio  `json:"audio"`
	Vibe     Vibe   `json:"vibe"`
}

// Analysis is the structured output of the trust analyzer for one raw
// signal. It is the only thing derived from raw content that may flow
// toward durable storage.
type Analysis struct {
	EventConfidence  float64  `json:"event_confidence"`
	Override         bool     `json:"override"`
	HasLiveEvent     bool     `json:"has_live_event"`
	Visual           Visual   `json:"visual"`
	Audio            Audio    `json:"audio"`
	DetectedKeywords []string `json:"detected_keywords,omitempty"`
}

// NeutralAnalysis is substituted when analysis fails: no confirmation and
// no override.
func NeutralAnalysis() Analysis {
	return Analysis{Visual: VisualNone, Audio: AudioNone}
}
