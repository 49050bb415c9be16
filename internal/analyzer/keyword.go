package analyzer

import (
	"context"

	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/textmatch"
)

// KeywordBackend is the deterministic fallback. It needs no network and
// never fails.
type KeywordBackend struct {
	lex Lexicon
}

// NewKeywordBackend creates a keyword backend over lex.
func NewKeywordBackend(lex Lexicon) *KeywordBackend {
	return &KeywordBackend{lex: lex}
}

func (k *KeywordBackend) Name() string { return "keyword" }

// Analyze applies the keyword policy. Override terms win regardless of
// confidence. The image reference is ignored.
func (k *KeywordBackend) Analyze(_ context.Context, text, _ string) (model.Analysis, error) {
	live := textmatch.ContainsAny(text, k.lex.EventTerms)
	a := model.Analysis{
		HasLiveEvent:     live,
		EventConfidence:  k.lex.NoMatchConfidence,
		Override:         textmatch.ContainsAny(text, k.lex.OverrideTerms),
		DetectedKeywords: textmatch.Matches(text, k.lex.Reported),
		Visual:           model.VisualNone,
		Audio:            model.AudioNone,
	}
	if live {
		a.EventConfidence = k.lex.MatchConfidence
	}

	switch {
	case textmatch.ContainsAny(text, k.lex.BigScreenTerms):
		a.Visual = model.VisualBigScreen
	case textmatch.ContainsAny(text, k.lex.StandardTerms):
		a.Visual = model.VisualStandard
	}
	switch {
	case textmatch.ContainsAny(text, k.lex.SoundOnTerms):
		a.Audio = model.AudioSoundOn
	case textmatch.ContainsAny(text, k.lex.BackgroundTerms):
		a.Audio = model.AudioBackground
	}
	return a, nil
}
