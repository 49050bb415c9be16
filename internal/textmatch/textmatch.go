// Package textmatch folds text for case- and accent-insensitive keyword
// matching and computes a simple token relevance score.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and collapses whitespace, so
// "Sound  ON" and "sound on" compare equal and "Café" matches "cafe".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)
	return strings.Join(strings.Fields(out), " ")
}

// Contains reports whether phrase occurs in text as a run of whole words,
// after folding both. "live" matches "LIVE now" but not "Liverpool".
func Contains(text, phrase string) bool {
	return containsRun(Tokens(text), Tokens(phrase))
}

// Matches returns the phrases found in text, in the order given.
func Matches(text string, phrases []string) []string {
	words := Tokens(text)
	var found []string
	for _, p := range phrases {
		if containsRun(words, Tokens(p)) {
			found = append(found, p)
		}
	}
	return found
}

// ContainsAny reports whether any phrase occurs in text.
func ContainsAny(text string, phrases []string) bool {
	words := Tokens(text)
	for _, p := range phrases {
		if containsRun(words, Tokens(p)) {
			return true
		}
	}
	return false
}

func containsRun(words, run []string) bool {
	if len(run) == 0 || len(run) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(run) <= len(words); i++ {
		for j, w := range run {
			if words[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

// Tokens splits folded text into alphanumeric words.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Relevance scores how well doc answers query in [0,1]: the share of
// distinct query tokens present in doc. An empty query scores 0.
func Relevance(doc, query string) float64 {
	q := Tokens(query)
	if len(q) == 0 {
		return 0
	}
	words := make(map[string]struct{})
	for _, w := range Tokens(doc) {
		words[w] = struct{}{}
	}

	seen := make(map[string]struct{}, len(q))
	hit := 0
	for _, w := range q {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := words[w]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(seen))
}
