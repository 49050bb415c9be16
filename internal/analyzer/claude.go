package analyzer

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/pkg/anthropic"
)

const validatorPrompt = `You validate social posts from sports venues. Decide whether the venue is showing a live sports event and whether it is operating normally.

Event keywords: WBC, World Cup, Premier League, Live, Sound On.
Override keywords: Closed, Private Event, Sold Out.

Reply with one JSON object and nothing else:
{
  "has_live_event": boolean,
  "event_confidence": number between 0 and 1,
  "detected_keywords": [string],
  "qoe_update": {"visual": "big-screen" | "standard" | null, "audio": "sound-on" | "background" | null},
  "override_status": boolean
}
override_status is true only when the post says the venue is closed, hosting a private event, or sold out.`

// ClaudeBackend asks an Anthropic model to judge the post.
type ClaudeBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeBackend creates a backend over client.
func NewClaudeBackend(client anthropic.Client, model string, maxTokens int64) *ClaudeBackend {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &ClaudeBackend{client: client, model: model, maxTokens: maxTokens}
}

func (c *ClaudeBackend) Name() string { return "anthropic" }

type verdict struct {
	HasLiveEvent     bool     `json:"has_live_event"`
	EventConfidence  float64  `json:"event_confidence"`
	DetectedKeywords []string `json:"detected_keywords"`
	QoEUpdate        struct {
		Visual *string `json:"visual"`
		Audio  *string `json:"audio"`
	} `json:"qoe_update"`
	OverrideStatus bool `json:"override_status"`
}

// Analyze sends text and the optional image to the model and parses its
// verdict.
func (c *ClaudeBackend) Analyze(ctx context.Context, text, imageRef string) (model.Analysis, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      validatorPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:     "user",
			Content:  "Post: " + text,
			ImageURL: imageRef,
		}},
	})
	if err != nil {
		return model.Analysis{}, err
	}
	resp.Usage.LogCost(c.model, "analyze")

	return parseVerdict(resp.Text())
}

func parseVerdict(raw string) (model.Analysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return model.Analysis{}, eris.New("analyzer: model reply has no JSON object")
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return model.Analysis{}, eris.Wrap(err, "analyzer: decode model reply")
	}

	return model.Analysis{
		EventConfidence:  clamp01(v.EventConfidence),
		Override:         v.OverrideStatus,
		HasLiveEvent:     v.HasLiveEvent,
		Visual:           normalizeVisual(v.QoEUpdate.Visual),
		Audio:            normalizeAudio(v.QoEUpdate.Audio),
		DetectedKeywords: v.DetectedKeywords,
	}, nil
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func normalizeVisual(s *string) model.Visual {
	if s == nil {
		return model.VisualNone
	}
	v := strings.ToLower(*s)
	switch {
	case strings.Contains(v, "big"), strings.Contains(v, "projector"), v == "screen":
		return model.VisualBigScreen
	case strings.Contains(v, "standard"), strings.Contains(v, "tv"):
		return model.VisualStandard
	}
	return model.VisualNone
}

func normalizeAudio(s *string) model.Audio {
	if s == nil {
		return model.AudioNone
	}
	a := strings.ToLower(*s)
	switch {
	case strings.Contains(a, "sound"), strings.Contains(a, "commentary"):
		return model.AudioSoundOn
	case strings.Contains(a, "background"), strings.Contains(a, "music"):
		return model.AudioBackground
	}
	return model.AudioNone
}
