// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package destination maps a noisy spoken-language transcript to a place of
// the gazetteer. Resolution runs an ordered chain of matchers: the local fuzzy
// matcher, then the semantic and geocoding fallbacks. The first stage that
// accepts a match wins.
package destination

import (
	"context"
	"fmt"
	"time"

	"github.com/jcodagnone/nemchi/gazetteer"
	"github.com/jcodagnone/nemchi/spatial"
)

// Method tags which stage of the pipeline produced a match.
type Method string

const (
	MethodLocalFuzzy        Method = "local-fuzzy"
	MethodSemanticFallback  Method = "semantic-fallback"
	MethodGeocodingFallback Method = "geocoding-fallback"
)

// Match is the outcome of a successful resolution.
type Match struct {
	Place          gazetteer.Place
	MatchedVariant string
	Confidence     float64 // in [0, 1]
	Method         Method
}

// Candidate is a scored (place, variant) pairing considered by the local
// matcher during a single resolution.
type Candidate struct {
	Place   gazetteer.Place
	Variant string
	Score   float64
	Source  string // span, contains or contained
}

// Transcript is the raw text together with its normalized form.
type Transcript struct {
	Raw        string
	Normalized string
	Tokens     []string
}

// Status classifies the result of a matcher attempt.
type Status int

const (
	StatusNoMatch Status = iota
	StatusMatched
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusNoMatch:
		return "no_match"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is what a matcher returns. Failures are carried as values so that
// a broken collaborator and a confident "no match" stay distinguishable.
type Outcome struct {
	Status Status
	Match  *Match
	Err    error
}

func matched(m *Match) Outcome { return Outcome{Status: StatusMatched, Match: m} }
func noMatch() Outcome         { return Outcome{Status: StatusNoMatch} }
func failed(err error) Outcome { return Outcome{Status: StatusFailed, Err: err} }

// Matcher is one stage of the resolution chain. Implementations only return
// StatusMatched when the match clears their own acceptance threshold.
type Matcher interface {
	Method() Method
	Attempt(ctx context.Context, t Transcript, g *gazetteer.Gazetteer) Outcome
}

// SemanticResult is the answer of a SemanticMatcher. A nil PlaceID with
// confidence 0 means no match.
type SemanticResult struct {
	PlaceID    *int    `json:"place_id"`
	Confidence float64 `json:"confidence"`
}

// SemanticMatcher picks the intended place among the candidates given the raw
// transcript. It must not return an error for "no confident match".
type SemanticMatcher interface {
	MatchPlace(ctx context.Context, transcript string, places []gazetteer.Place) (SemanticResult, error)
}

// GeocodeResult is a point of interest found by a GeocodeSearcher.
type GeocodeResult struct {
	Name  string
	Point spatial.Point
}

// GeocodeSearcher looks up a free text query in an open-world index near
// anchor. A nil result with a nil error means nothing was found.
type GeocodeSearcher interface {
	Search(ctx context.Context, query string, anchor spatial.Point) (*GeocodeResult, error)
}

// StageReport records how a stage behaved during a resolution.
type StageReport struct {
	Method   Method
	Status   Status
	Err      error
	Duration time.Duration
}

// Resolution is the full account of resolving one transcript.
type Resolution struct {
	Transcript Transcript
	Match      *Match // nil when no stage accepted
	Stages     []StageReport
}
