// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// arabicDiacritics are the combining marks dropped by the normalizer: tanwin,
// short vowels, shadda, sukun, hamza and madda marks, and the superscript alif.
var arabicDiacritics = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x064B, Hi: 0x065F, Stride: 1},
		{Lo: 0x0670, Hi: 0x0670, Stride: 1},
	},
}

var letterUnifier = strings.NewReplacer(
	"أ", "ا", // alif with hamza above
	"إ", "ا", // alif with hamza below
	"آ", "ا", // alif with madda
	"ى", "ي", // alif maqsura
	"ة", "ه", // ta marbuta
	"ـ", "", // tatweel
)

// DefaultIntentPhrases are the leading Hassaniya expressions of "I want to go
// to" that carry no destination information. They may be written with any
// spelling the normalizer unifies.
var DefaultIntentPhrases = []string{
	"نبغي نمشي إلى",
	"نبغي نمشي",
	"انبغي نمشي",
	"بغيت نمشي",
	"ابغيت نمشي",
	"نبغي نروح",
	"نبغي انروح",
	"وديني إلى",
	"وديني",
	"نمشي إلى",
	"نمشي",
	"نبغي",
	"nebghi nemchi",
	"nbghi nemchi",
	"nebghi nemshi",
	"bghit nemchi",
	"nemchi",
	"nemshi",
}

// Normalizer canonicalizes transcripts and name variants so that they can be
// compared character by character. It is safe for concurrent use.
type Normalizer struct {
	intent *regexp.Regexp // nil when there are no phrases
}

// NewNormalizer creates a normalizer that strips the given leading intent
// phrases. Phrases are normalized the same way as the text they are matched
// against, and tried longest first.
func NewNormalizer(phrases []string) *Normalizer {
	normalized := make([]string, 0, len(phrases))

	for _, phrase := range phrases {
		phrase = strings.Join(strings.Fields(unifyLetters(strings.ToLower(phrase))), " ")
		if phrase != "" && !slices.Contains(normalized, phrase) {
			normalized = append(normalized, phrase)
		}
	}

	if len(normalized) == 0 {
		return &Normalizer{}
	}

	slices.SortStableFunc(normalized, func(a, b string) int {
		if la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b); la != lb {
			return lb - la
		}

		return strings.Compare(a, b)
	})

	alternatives := make([]string, len(normalized))
	for i, phrase := range normalized {
		words := strings.Fields(phrase)
		for j := range words {
			words[j] = regexp.QuoteMeta(words[j])
		}

		alternatives[i] = strings.Join(words, `\s+`)
	}

	// RE2 alternation prefers the leftmost alternative, hence longest first.
	return &Normalizer{
		intent: regexp.MustCompile(`^(?:` + strings.Join(alternatives, "|") + `)\s*`),
	}
}

var defaultNormalizer = NewNormalizer(DefaultIntentPhrases)

// Normalize canonicalizes text with the default intent phrases.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

// Normalize returns the canonical form of text: lowercased, without Arabic
// diacritics, with letter variants unified, without a leading intent phrase
// and with single spaces between tokens. Empty input yields "".
func (n *Normalizer) Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ""
	}

	// Removed marks may leave leading spaces in front of the intent phrase.
	text = strings.TrimSpace(unifyLetters(text))

	if n.intent != nil {
		if loc := n.intent.FindStringIndex(text); loc != nil {
			text = text[loc[1]:]
		}
	}

	return strings.Join(strings.Fields(text), " ")
}

// unifyLetters strips diacritics, then collapses letter variants. Diacritics
// go first so that decomposed forms (alif + combining madda) end up as alif.
func unifyLetters(s string) string {
	s, _, _ = transform.String(runes.Remove(runes.In(arabicDiacritics)), s)

	return letterUnifier.Replace(s)
}
