package analyzer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Lexicon is the term list behind the keyword backend. Terms are matched as
// whole-word phrases, case and accent insensitive.
type Lexicon struct {
	EventTerms    []string `yaml:"event_terms"`
	OverrideTerms []string `yaml:"override_terms"`
	// Reported lists the keywords echoed back in DetectedKeywords.
	Reported        []string `yaml:"reported"`
	BigScreenTerms  []string `yaml:"big_screen_terms"`
	StandardTerms   []string `yaml:"standard_terms"`
	SoundOnTerms    []string `yaml:"sound_on_terms"`
	BackgroundTerms []string `yaml:"background_terms"`

	MatchConfidence   float64 `yaml:"match_confidence"`
	NoMatchConfidence float64 `yaml:"no_match_confidence"`
}

// DefaultLexicon returns the built-in term lists.
func DefaultLexicon() Lexicon {
	return Lexicon{
		EventTerms:        []string{"live", "match", "broadcast", "kick off", "kickoff", "football", "wbc", "world cup", "premier league", "sound on"},
		OverrideTerms:     []string{"closed", "private event", "private party", "sold out", "fully booked"},
		Reported:          []string{"Live", "Match", "WBC", "World Cup", "Premier League", "Sound ON", "Big Screen"},
		BigScreenTerms:    []string{"big screen", "screen", "screens", "projector"},
		StandardTerms:     []string{"tv", "tvs", "television"},
		SoundOnTerms:      []string{"sound on", "commentary"},
		BackgroundTerms:   []string{"music", "background"},
		MatchConfidence:   0.95,
		NoMatchConfidence: 0.1,
	}
}

// Validate rejects lexicons the keyword policy cannot honour.
func (l Lexicon) Validate() error {
	if len(l.EventTerms) == 0 {
		return eris.New("analyzer: lexicon has no event terms")
	}
	if len(l.OverrideTerms) == 0 {
		return eris.New("analyzer: lexicon has no override terms")
	}
	if l.MatchConfidence < 0.85 || l.MatchConfidence > 1 {
		return eris.Errorf("analyzer: match_confidence %.2f must be within [0.85,1]", l.MatchConfidence)
	}
	if l.NoMatchConfidence < 0 || l.NoMatchConfidence > 0.1 {
		return eris.Errorf("analyzer: no_match_confidence %.2f must be within [0,0.1]", l.NoMatchConfidence)
	}
	return nil
}

// LoadLexicon reads a YAML lexicon. Keys absent from the file keep their
// default values.
func LoadLexicon(path string) (Lexicon, error) {
	lex := DefaultLexicon()
	data, err := os.ReadFile(path)
	if err != nil {
		return lex, eris.Wrapf(err, "analyzer: read lexicon %s", path)
	}
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return lex, eris.Wrapf(err, "analyzer: parse lexicon %s", path)
	}
	if err := lex.Validate(); err != nil {
		return lex, err
	}
	return lex, nil
}
