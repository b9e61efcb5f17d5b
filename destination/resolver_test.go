// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jcodagnone/nemchi/gazetteer"
	"github.com/jcodagnone/nemchi/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type semanticStub struct {
	result     SemanticResult
	err        error
	block      bool
	calls      atomic.Int32
	transcript string
}

func (s *semanticStub) MatchPlace(ctx context.Context, transcript string, _ []gazetteer.Place) (SemanticResult, error) {
	s.calls.Add(1)
	s.transcript = transcript

	if s.block {
		<-ctx.Done()

		return SemanticResult{}, ctx.Err()
	}

	return s.result, s.err
}

type geocodeStub struct {
	result *GeocodeResult
	err    error
	calls  atomic.Int32
	anchor spatial.Point
}

func (s *geocodeStub) Search(_ context.Context, _ string, anchor spatial.Point) (*GeocodeResult, error) {
	s.calls.Add(1)
	s.anchor = anchor

	return s.result, s.err
}

func intPtr(v int) *int { return &v }

func testGazetteer(t *testing.T) *gazetteer.Gazetteer {
	t.Helper()

	g, err := gazetteer.New("Nouakchott", spatial.Point{Lat: 18.0858, Lng: -15.9785}, []gazetteer.Place{
		{ID: 1, Name: "Toujounine", Variants: []string{"توجنين", "toujounine"}, Lat: 18.0781, Lng: -15.9081},
		{ID: 2, Name: "Ksar", Variants: []string{"لكصر", "ksar"}, Lat: 18.1030, Lng: -15.9500},
		{ID: 3, Name: "Dar Naim", Variants: []string{"دار النعيم"}, Lat: 18.1167, Lng: -15.9317},
	})
	require.NoError(t, err)

	return g
}

func newResolver(t *testing.T, cfg Config, opts ...Option) *Resolver {
	t.Helper()

	r, err := NewResolver(cfg, opts...)
	require.NoError(t, err)

	return r
}

func TestResolveLocal(t *testing.T) {
	g := testGazetteer(t)
	semantic := &semanticStub{}
	geocode := &geocodeStub{}
	r := newResolver(t, DefaultConfig(), WithSemanticMatcher(semantic), WithGeocodeSearcher(geocode))

	tests := []struct {
		name       string
		transcript string
		placeID    int
		variant    string
		confidence float64
	}{
		{"intent phrase", "نبغي نمشي توجنين", 1, "توجنين", 1},
		{"exact variant", "لكصر", 2, "لكصر", 1},
		{"latin variant", "Nemchi KSAR", 2, "ksar", 1},
		{"typo", "توجونين", 1, "توجنين", 1 - 1.0/7},
		{"partial name", "النعيم", 3, "دار النعيم", 0.95},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := r.Resolve(context.Background(), tc.transcript, g)
			require.NotNil(t, m)
			assert.Equal(t, MethodLocalFuzzy, m.Method)
			assert.Equal(t, tc.placeID, m.Place.ID)
			assert.Equal(t, tc.variant, m.MatchedVariant)
			assert.InDelta(t, tc.confidence, m.Confidence, 1e-9)
			assert.GreaterOrEqual(t, m.Confidence, DefaultConfig().LocalThreshold)
		})
	}

	assert.Zero(t, semantic.calls.Load())
	assert.Zero(t, geocode.calls.Load())
}

func TestResolveNoMatch(t *testing.T) {
	g := testGazetteer(t)
	semantic := &semanticStub{result: SemanticResult{PlaceID: nil, Confidence: 0}}
	geocode := &geocodeStub{}
	r := newResolver(t, DefaultConfig(), WithSemanticMatcher(semantic), WithGeocodeSearcher(geocode))

	res := r.Run(context.Background(), "zzzz qqqq", g)
	assert.Nil(t, res.Match)
	require.Len(t, res.Stages, 3)

	for i, method := range []Method{MethodLocalFuzzy, MethodSemanticFallback, MethodGeocodingFallback} {
		assert.Equal(t, method, res.Stages[i].Method)
		assert.Equal(t, StatusNoMatch, res.Stages[i].Status)
	}

	assert.Equal(t, int32(1), semantic.calls.Load())
	assert.Equal(t, int32(1), geocode.calls.Load())
}

func TestResolveSemantic(t *testing.T) {
	g := testGazetteer(t)
	semantic := &semanticStub{result: SemanticResult{PlaceID: intPtr(2), Confidence: 0.9}}
	geocode := &geocodeStub{}
	r := newResolver(t, DefaultConfig(), WithSemanticMatcher(semantic), WithGeocodeSearcher(geocode))

	m := r.Resolve(context.Background(), "  zzzz qqqq ", g)
	require.NotNil(t, m)
	assert.Equal(t, MethodSemanticFallback, m.Method)
	assert.Equal(t, 2, m.Place.ID)
	assert.Equal(t, "Ksar", m.MatchedVariant)
	assert.InDelta(t, 0.9, m.Confidence, 1e-9)

	assert.Equal(t, "  zzzz qqqq ", semantic.transcript, "semantic matcher sees the raw transcript")
	assert.Zero(t, geocode.calls.Load())
}

func TestResolveGeocoding(t *testing.T) {
	g := testGazetteer(t)
	semantic := &semanticStub{result: SemanticResult{PlaceID: intPtr(2), Confidence: 0.8}}
	geocode := &geocodeStub{result: &GeocodeResult{
		Name:  "Stade Olympique",
		Point: spatial.Point{Lat: 18.0950, Lng: -15.9700},
	}}
	r := newResolver(t, DefaultConfig(), WithSemanticMatcher(semantic), WithGeocodeSearcher(geocode))

	m := r.Resolve(context.Background(), "zzzz qqqq", g)
	require.NotNil(t, m)
	assert.Equal(t, MethodGeocodingFallback, m.Method)
	assert.Equal(t, gazetteer.ExternalPlaceID, m.Place.ID)
	assert.True(t, m.Place.IsExternal())
	assert.Equal(t, "Stade Olympique", m.Place.Name)
	assert.InDelta(t, 18.0950, m.Place.Lat, 1e-9)
	assert.InDelta(t, DefaultConfig().GeocodingConfidence, m.Confidence, 1e-9)
	assert.Equal(t, g.Anchor(), geocode.anchor)

	geocode.result.Name = " "
	m = r.Resolve(context.Background(), " zzzz qqqq", g)
	require.NotNil(t, m)
	assert.Equal(t, "zzzz qqqq", m.Place.Name)
}

func TestResolveSwallowsFailures(t *testing.T) {
	g := testGazetteer(t)

	tests := []struct {
		name     string
		semantic *semanticStub
		cfg      func(*Config)
	}{
		{
			name:     "error",
			semantic: &semanticStub{err: errors.New("connection refused")},
		},
		{
			name:     "unknown place",
			semantic: &semanticStub{result: SemanticResult{PlaceID: intPtr(99), Confidence: 0.99}},
		},
		{
			name:     "timeout",
			semantic: &semanticStub{block: true},
			cfg:      func(c *Config) { c.FallbackTimeout = 10 * time.Millisecond },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}

			geocode := &geocodeStub{result: &GeocodeResult{Name: "Stade", Point: g.Anchor()}}
			r := newResolver(t, cfg, WithSemanticMatcher(tc.semantic), WithGeocodeSearcher(geocode))

			res := r.Run(context.Background(), "zzzz qqqq", g)
			require.NotNil(t, res.Match)
			assert.Equal(t, MethodGeocodingFallback, res.Match.Method)

			require.Len(t, res.Stages, 3)
			assert.Equal(t, StatusFailed, res.Stages[1].Status)
			require.Error(t, res.Stages[1].Err)
			assert.Equal(t, int32(1), geocode.calls.Load())
		})
	}
}

func TestResolveGeocodingFailure(t *testing.T) {
	g := testGazetteer(t)
	geocode := &geocodeStub{err: errors.New("quota exceeded")}
	r := newResolver(t, DefaultConfig(), WithGeocodeSearcher(geocode))

	res := r.Run(context.Background(), "zzzz", g)
	assert.Nil(t, res.Match)
	require.Len(t, res.Stages, 2)
	assert.Equal(t, StatusFailed, res.Stages[1].Status)
}

func TestResolveEmpty(t *testing.T) {
	g := testGazetteer(t)
	empty, err := gazetteer.New("Nowhere", g.Anchor(), nil)
	require.NoError(t, err)

	tests := []struct {
		name       string
		transcript string
		g          *gazetteer.Gazetteer
	}{
		{"empty transcript", "", g},
		{"blank transcript", " \t\n", g},
		{"intent phrase only", "نبغي نمشي", g},
		{"empty gazetteer", "توجنين", empty},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			semantic := &semanticStub{result: SemanticResult{PlaceID: intPtr(1), Confidence: 1}}
			geocode := &geocodeStub{result: &GeocodeResult{Name: "x"}}
			r := newResolver(t, DefaultConfig(), WithSemanticMatcher(semantic), WithGeocodeSearcher(geocode))

			res := r.Run(context.Background(), tc.transcript, tc.g)
			assert.Nil(t, res.Match)
			assert.Empty(t, res.Stages)
			assert.Zero(t, semantic.calls.Load())
			assert.Zero(t, geocode.calls.Load())
		})
	}
}

func TestResolveThresholds(t *testing.T) {
	g := testGazetteer(t)

	cfg := DefaultConfig()
	cfg.LocalThreshold = 0.9
	r := newResolver(t, cfg)
	assert.Nil(t, r.Resolve(context.Background(), "توجونين", g))

	cfg.LocalThreshold = 0.8
	r = newResolver(t, cfg)
	assert.NotNil(t, r.Resolve(context.Background(), "توجونين", g))

	cfg = DefaultConfig()
	cfg.SemanticThreshold = 0.95
	semantic := &semanticStub{result: SemanticResult{PlaceID: intPtr(2), Confidence: 0.9}}
	r = newResolver(t, cfg, WithSemanticMatcher(semantic))
	assert.Nil(t, r.Resolve(context.Background(), "zzzz", g))
}

func TestResolverObserver(t *testing.T) {
	g := testGazetteer(t)

	var reports []StageReport
	semantic := &semanticStub{result: SemanticResult{PlaceID: intPtr(3), Confidence: 0.92}}
	r := newResolver(t, DefaultConfig(),
		WithSemanticMatcher(semantic),
		WithGeocodeSearcher(&geocodeStub{}),
		WithObserver(func(sr StageReport) { reports = append(reports, sr) }),
	)

	assert.Equal(t, []Method{MethodLocalFuzzy, MethodSemanticFallback, MethodGeocodingFallback}, r.Stages())

	m := r.Resolve(context.Background(), "zzzz", g)
	require.NotNil(t, m)
	require.Len(t, reports, 2)
	assert.Equal(t, StatusNoMatch, reports[0].Status)
	assert.Equal(t, StatusMatched, reports[1].Status)
}

func TestResolverConcurrent(t *testing.T) {
	g := testGazetteer(t)
	r := newResolver(t, DefaultConfig())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			m := r.Resolve(context.Background(), "نبغي نمشي توجنين", g)
			assert.NotNil(t, m)
		}()
	}

	wg.Wait()
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"zero thresholds", func(c *Config) { c.LocalThreshold, c.SemanticThreshold = 0, 0 }, true},
		{"local above one", func(c *Config) { c.LocalThreshold = 1.1 }, false},
		{"negative semantic", func(c *Config) { c.SemanticThreshold = -0.1 }, false},
		{"geocoding above one", func(c *Config) { c.GeocodingConfidence = 2 }, false},
		{"no spans", func(c *Config) { c.MaxSpanLength = 0 }, false},
		{"negative timeout", func(c *Config) { c.FallbackTimeout = -time.Second }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			_, err := NewResolver(cfg)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestResolveLongTranscript(t *testing.T) {
	g, err := gazetteer.New("x", spatial.Point{Lat: 18, Lng: -16}, []gazetteer.Place{
		{ID: 1, Name: "Long", Variants: []string{"aaaa bbbb cccc dddd eeee"}, Lat: 18, Lng: -16},
	})
	require.NoError(t, err)

	semantic := &semanticStub{result: SemanticResult{PlaceID: intPtr(1), Confidence: 0.9}}
	r := newResolver(t, DefaultConfig(), WithSemanticMatcher(semantic))

	// Five tokens exceed the span limit; an exact variant still scores 1.0.
	m := r.Resolve(context.Background(), "aaaa bbbb cccc dddd eeee", g)
	require.NotNil(t, m)
	assert.Equal(t, MethodLocalFuzzy, m.Method)
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)
	assert.Zero(t, semantic.calls.Load())

	// Only spans and containment are scored, so the typos fall under the
	// local threshold.
	const typos = "aaaa bxbx cxcx dxdd eeee"

	candidates := r.Explain(typos, g, 1)
	require.Len(t, candidates, 1)
	assert.InDelta(t, 0.9*(1-5.0/24), candidates[0].Score, 1e-9)

	m = r.Resolve(context.Background(), typos, g)
	require.NotNil(t, m)
	assert.Equal(t, MethodSemanticFallback, m.Method)
	assert.Equal(t, int32(1), semantic.calls.Load())
}

func TestExplain(t *testing.T) {
	g := testGazetteer(t)
	r := newResolver(t, DefaultConfig())

	candidates := r.Explain("النعيم", g, 3)
	require.Len(t, candidates, 3)
	assert.Equal(t, 3, candidates[0].Place.ID)
	assert.Equal(t, "contained", candidates[0].Source)
	assert.InDelta(t, 0.95, candidates[0].Score, 1e-9)

	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}

	assert.Len(t, r.Explain("النعيم", g, 0), 5)
	assert.Empty(t, r.Explain("", g, 0))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "matched", StatusMatched.String())
	assert.Equal(t, "no_match", StatusNoMatch.String())
	assert.Equal(t, "failed", StatusFailed.String())
}
