// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/jcodagnone/nemchi/gazetteer"
)

// LocalMatcher scores the transcript against every variant of every place
// using edit-distance similarity over token spans and containment both ways.
type LocalMatcher struct {
	normalizer    *Normalizer
	threshold     float64
	maxSpanLength int
}

// NewLocalMatcher creates the local fuzzy stage.
func NewLocalMatcher(normalizer *Normalizer, threshold float64, maxSpanLength int) *LocalMatcher {
	return &LocalMatcher{
		normalizer:    normalizer,
		threshold:     threshold,
		maxSpanLength: maxSpanLength,
	}
}

func (m *LocalMatcher) Method() Method { return MethodLocalFuzzy }

func (m *LocalMatcher) Attempt(_ context.Context, t Transcript, g *gazetteer.Gazetteer) Outcome {
	var best *Candidate

	m.score(t, g, func(c Candidate) {
		if best == nil || c.Score > best.Score {
			best = &c
		}
	})

	if best == nil || best.Score < m.threshold {
		return noMatch()
	}

	return matched(&Match{
		Place:          best.Place,
		MatchedVariant: best.Variant,
		Confidence:     clamp(best.Score),
		Method:         MethodLocalFuzzy,
	})
}

// Candidates returns the best pairing of every (place, variant), sorted by
// decreasing score. Ties keep gazetteer order.
func (m *LocalMatcher) Candidates(t Transcript, g *gazetteer.Gazetteer) []Candidate {
	var ret []Candidate

	m.score(t, g, func(c Candidate) {
		ret = append(ret, c)
	})

	slices.SortStableFunc(ret, func(a, b Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return ret
}

// score calls emit once per non-empty variant with its best comparison.
func (m *LocalMatcher) score(t Transcript, g *gazetteer.Gazetteer, emit func(Candidate)) {
	if t.Normalized == "" || g.Len() == 0 {
		return
	}

	spans := GenerateSpans(t.Tokens, m.maxSpanLength)

	_ = g.Each(func(place gazetteer.Place) error {
		for _, variant := range place.Variants {
			normalized := m.normalizer.Normalize(variant)
			if normalized == "" {
				continue
			}

			c := Candidate{Place: place, Variant: variant, Source: "span"}

			// An exact variant scores 1.0 even when it is longer than the
			// span limit.
			if t.Normalized == normalized {
				c.Score = 1
			}

			for _, span := range spans {
				c.Score = max(c.Score, Similarity(span, normalized))
			}

			if s := Containment(t.Normalized, normalized); s > c.Score {
				c.Score, c.Source = s, "contains"
			}

			if s := Containment(normalized, t.Normalized); s > c.Score {
				c.Score, c.Source = s, "contained"
			}

			emit(c)
		}

		return nil
	})
}

var errUnknownPlace = errors.New("unknown place id")

// SemanticStage delegates to a SemanticMatcher, accepting its answer only
// when it names a gazetteer place with enough confidence.
type SemanticStage struct {
	matcher   SemanticMatcher
	threshold float64
}

// NewSemanticStage creates the semantic fallback stage.
func NewSemanticStage(matcher SemanticMatcher, threshold float64) *SemanticStage {
	return &SemanticStage{matcher: matcher, threshold: threshold}
}

func (s *SemanticStage) Method() Method { return MethodSemanticFallback }

func (s *SemanticStage) Attempt(ctx context.Context, t Transcript, g *gazetteer.Gazetteer) Outcome {
	res, err := s.matcher.MatchPlace(ctx, t.Raw, g.Places())
	if err != nil {
		return failed(err)
	}

	if res.PlaceID == nil {
		return noMatch()
	}

	place, ok := g.Get(*res.PlaceID)
	if !ok {
		// An id outside the gazetteer is a collaborator error.
		return failed(fmt.Errorf("%w: %d", errUnknownPlace, *res.PlaceID))
	}

	if math.IsNaN(res.Confidence) || res.Confidence < s.threshold {
		return noMatch()
	}

	return matched(&Match{
		Place:          place,
		MatchedVariant: place.Name,
		Confidence:     clamp(res.Confidence),
		Method:         MethodSemanticFallback,
	})
}

// GeocodingStage searches an open-world index around the gazetteer anchor
// and synthesizes a place outside the gazetteer with a fixed confidence.
type GeocodingStage struct {
	searcher   GeocodeSearcher
	confidence float64
}

// NewGeocodingStage creates the geocoding fallback stage.
func NewGeocodingStage(searcher GeocodeSearcher, confidence float64) *GeocodingStage {
	return &GeocodingStage{searcher: searcher, confidence: confidence}
}

func (s *GeocodingStage) Method() Method { return MethodGeocodingFallback }

func (s *GeocodingStage) Attempt(ctx context.Context, t Transcript, g *gazetteer.Gazetteer) Outcome {
	res, err := s.searcher.Search(ctx, t.Raw, g.Anchor())
	if err != nil {
		return failed(err)
	}

	if res == nil {
		return noMatch()
	}

	name := strings.TrimSpace(res.Name)
	if name == "" {
		name = strings.TrimSpace(t.Raw)
	}

	return matched(&Match{
		Place: gazetteer.Place{
			ID:   gazetteer.ExternalPlaceID,
			Name: name,
			Lat:  res.Point.Lat,
			Lng:  res.Point.Lng,
		},
		MatchedVariant: name,
		Confidence:     clamp(s.confidence),
		Method:         MethodGeocodingFallback,
	})
}

func clamp(v float64) float64 {
	return min(1, max(0, v))
}
