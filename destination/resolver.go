// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/jcodagnone/nemchi/gazetteer"
)

// Config holds the tunables of a Resolver.
type Config struct {
	// LocalThreshold is the minimum local fuzzy score accepted.
	LocalThreshold float64

	// SemanticThreshold is the minimum confidence accepted from the semantic
	// matcher.
	SemanticThreshold float64

	// GeocodingConfidence is the fixed confidence of geocoding matches.
	GeocodingConfidence float64

	// MaxSpanLength bounds the number of tokens of candidate spans.
	MaxSpanLength int

	// IntentPhrases are stripped from the start of transcripts. nil selects
	// DefaultIntentPhrases; an empty non-nil slice disables stripping.
	IntentPhrases []string

	// FallbackTimeout bounds each fallback stage. Zero means no bound
	// beyond the caller context.
	FallbackTimeout time.Duration
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		LocalThreshold:      0.75,
		SemanticThreshold:   0.85,
		GeocodingConfidence: 0.7,
		MaxSpanLength:       4,
		FallbackTimeout:     8 * time.Second,
	}
}

// Validate checks the configuration ranges.
func (c *Config) Validate() error {
	var errs []error

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"local threshold", c.LocalThreshold},
		{"semantic threshold", c.SemanticThreshold},
		{"geocoding confidence", c.GeocodingConfidence},
	} {
		if !(f.value >= 0 && f.value <= 1) {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", f.name, f.value))
		}
	}

	if c.MaxSpanLength < 1 {
		errs = append(errs, fmt.Errorf("max span length must be positive, got %d", c.MaxSpanLength))
	}

	if c.FallbackTimeout < 0 {
		errs = append(errs, fmt.Errorf("fallback timeout must not be negative, got %v", c.FallbackTimeout))
	}

	return errors.Join(errs...)
}

// StageObserver is notified after every stage attempt.
type StageObserver func(StageReport)

// Option configures a Resolver.
type Option func(*Resolver)

// WithSemanticMatcher appends a semantic fallback stage.
func WithSemanticMatcher(m SemanticMatcher) Option {
	return func(r *Resolver) {
		r.stages = append(r.stages, NewSemanticStage(m, r.cfg.SemanticThreshold))
	}
}

// WithGeocodeSearcher appends a geocoding fallback stage.
func WithGeocodeSearcher(s GeocodeSearcher) Option {
	return func(r *Resolver) {
		r.stages = append(r.stages, NewGeocodingStage(s, r.cfg.GeocodingConfidence))
	}
}

// WithStage appends an arbitrary stage.
func WithStage(m Matcher) Option {
	return func(r *Resolver) {
		r.stages = append(r.stages, m)
	}
}

// WithObserver registers a StageObserver.
func WithObserver(o StageObserver) Option {
	return func(r *Resolver) {
		r.observers = append(r.observers, o)
	}
}

// Resolver walks the matcher chain, local stage first, and returns the first
// accepted match. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	cfg        Config
	normalizer *Normalizer
	local      *LocalMatcher
	stages     []Matcher
	observers  []StageObserver
}

// NewResolver creates a resolver. Fallback stages run in the order their
// options are given.
func NewResolver(cfg Config, opts ...Option) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolver configuration: %w", err)
	}

	phrases := cfg.IntentPhrases
	if phrases == nil {
		phrases = DefaultIntentPhrases
	}

	r := &Resolver{
		cfg:        cfg,
		normalizer: NewNormalizer(phrases),
	}
	r.local = NewLocalMatcher(r.normalizer, cfg.LocalThreshold, cfg.MaxSpanLength)
	r.stages = []Matcher{r.local}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Config returns the resolver configuration.
func (r *Resolver) Config() Config {
	c := r.cfg
	c.IntentPhrases = slices.Clone(c.IntentPhrases)

	return c
}

// Stages returns the methods of the chain, in order.
func (r *Resolver) Stages() []Method {
	ret := make([]Method, len(r.stages))
	for i, s := range r.stages {
		ret[i] = s.Method()
	}

	return ret
}

// Normalize applies the resolver normalizer to text.
func (r *Resolver) Normalize(text string) string {
	return r.normalizer.Normalize(text)
}

func (r *Resolver) transcript(raw string) Transcript {
	normalized := r.normalizer.Normalize(raw)

	return Transcript{
		Raw:        raw,
		Normalized: normalized,
		Tokens:     Tokenize(normalized),
	}
}

// Resolve returns the destination meant by transcript, or nil.
func (r *Resolver) Resolve(ctx context.Context, transcript string, g *gazetteer.Gazetteer) *Match {
	return r.Run(ctx, transcript, g).Match
}

// Run resolves transcript and reports what every attempted stage did. A
// transcript that normalizes to nothing, or an empty gazetteer, attempts no
// stage at all. Stage failures never abort the chain.
func (r *Resolver) Run(ctx context.Context, transcript string, g *gazetteer.Gazetteer) Resolution {
	res := Resolution{Transcript: r.transcript(transcript)}

	if res.Transcript.Normalized == "" || g.Len() == 0 {
		return res
	}

	for _, stage := range r.stages {
		report, outcome := r.attempt(ctx, stage, res.Transcript, g)
		res.Stages = append(res.Stages, report)

		for _, o := range r.observers {
			o(report)
		}

		if outcome.Status == StatusFailed {
			log.Printf("%s failed: %v", stage.Method(), outcome.Err)
		}

		if outcome.Status == StatusMatched {
			res.Match = outcome.Match

			return res
		}
	}

	return res
}

func (r *Resolver) attempt(ctx context.Context, stage Matcher, t Transcript, g *gazetteer.Gazetteer) (StageReport, Outcome) {
	if stage.Method() != MethodLocalFuzzy && r.cfg.FallbackTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.cfg.FallbackTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome := stage.Attempt(ctx, t, g)

	if outcome.Status == StatusMatched && outcome.Match == nil {
		outcome = failed(errors.New("matched without a match"))
	}

	return StageReport{
		Method:   stage.Method(),
		Status:   outcome.Status,
		Err:      outcome.Err,
		Duration: time.Since(start),
	}, outcome
}

// Explain returns the top n local candidates for transcript, for debugging.
// No fallback is consulted. n <= 0 returns all of them.
func (r *Resolver) Explain(transcript string, g *gazetteer.Gazetteer, n int) []Candidate {
	candidates := r.local.Candidates(r.transcript(transcript), g)
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}

	return candidates
}
