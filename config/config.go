// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the process configuration and how it is loaded.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jcodagnone/nemchi/destination"
	"github.com/jcodagnone/nemchi/geocode"
	"github.com/jcodagnone/nemchi/semantic"
	"github.com/jcodagnone/nemchi/transcribe"
)

// Config contains process configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr"`

	// GazetteerPath points to a JSON gazetteer. Empty selects the embedded
	// Nouakchott dataset.
	GazetteerPath string `koanf:"gazetteer_path"`

	// HistoryPath is the duckdb file resolutions are logged to. Empty
	// disables the history.
	HistoryPath string `koanf:"history_path"`

	// MaxUploadBytes caps the audio accepted by /api/transcribe.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	Resolver   ResolverConfig   `koanf:"resolver"`
	Semantic   SemanticConfig   `koanf:"semantic"`
	Geocode    GeocodeConfig    `koanf:"geocode"`
	Transcribe TranscribeConfig `koanf:"transcribe"`
}

type ResolverConfig struct {
	LocalThreshold      float64 `koanf:"local_threshold"`
	SemanticThreshold   float64 `koanf:"semantic_threshold"`
	GeocodingConfidence float64 `koanf:"geocoding_confidence"`
	MaxSpanLength       int     `koanf:"max_span_length"`

	// IntentPhrases replaces the built-in phrases when set.
	IntentPhrases []string `koanf:"intent_phrases"`

	FallbackTimeout time.Duration `koanf:"fallback_timeout"`
}

type SemanticConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

type GeocodeConfig struct {
	Enabled bool `koanf:"enabled"`

	// APIKey falls back to GOOGLE_MAPS_API_KEY and then to ADC discovery in
	// ProjectID.
	APIKey    string `koanf:"api_key"`
	ProjectID string `koanf:"project_id"`

	RadiusMeters   int           `koanf:"radius_m"`
	Language       string        `koanf:"language"`
	Region         string        `koanf:"region"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	RatePerSecond  float64       `koanf:"rate_per_sec"`
	AreaResolution int           `koanf:"area_resolution"`
	AreaRings      int           `koanf:"area_rings"`
	Timeout        time.Duration `koanf:"timeout"`
}

type TranscribeConfig struct {
	URL      string        `koanf:"url"`
	APIKey   string        `koanf:"api_key"`
	Model    string        `koanf:"model"`
	Language string        `koanf:"language"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	rc := destination.DefaultConfig()
	sc := semantic.DefaultConfig()
	gc := geocode.DefaultConfig()
	tc := transcribe.DefaultConfig()

	return &Config{
		Addr:           "localhost:8080",
		MaxUploadBytes: 10 << 20,
		Resolver: ResolverConfig{
			LocalThreshold:      rc.LocalThreshold,
			SemanticThreshold:   rc.SemanticThreshold,
			GeocodingConfidence: rc.GeocodingConfidence,
			MaxSpanLength:       rc.MaxSpanLength,
			FallbackTimeout:     rc.FallbackTimeout,
		},
		Semantic: SemanticConfig{
			URL:     sc.URL,
			Model:   sc.Model,
			Timeout: sc.Timeout,
		},
		Geocode: GeocodeConfig{
			RadiusMeters:   gc.RadiusMeters,
			Language:       gc.Language,
			Region:         gc.Region,
			CacheTTL:       gc.CacheTTL,
			RatePerSecond:  gc.RatePerSecond,
			AreaResolution: gc.AreaResolution,
			AreaRings:      gc.AreaRings,
			Timeout:        gc.Timeout,
		},
		Transcribe: TranscribeConfig{
			URL:      tc.URL,
			Model:    tc.Model,
			Language: tc.Language,
			Timeout:  tc.Timeout,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}

	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}

	rc := c.Resolver.Destination()
	if err := rc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("resolver: %w", err))
	}

	if c.Geocode.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("geocode.rate_per_sec must not be negative, got %v", c.Geocode.RatePerSecond))
	}

	return errors.Join(errs...)
}

// Destination converts to the resolver configuration.
func (r ResolverConfig) Destination() destination.Config {
	return destination.Config{
		LocalThreshold:      r.LocalThreshold,
		SemanticThreshold:   r.SemanticThreshold,
		GeocodingConfidence: r.GeocodingConfidence,
		MaxSpanLength:       r.MaxSpanLength,
		IntentPhrases:       r.IntentPhrases,
		FallbackTimeout:     r.FallbackTimeout,
	}
}

// Client converts to the Ollama client configuration.
func (s SemanticConfig) Client() semantic.Config {
	return semantic.Config{
		URL:     s.URL,
		Model:   s.Model,
		Timeout: s.Timeout,
	}
}

// Places converts to the Places client configuration.
func (g GeocodeConfig) Places(apiKey string) geocode.Config {
	return geocode.Config{
		APIKey:         apiKey,
		RadiusMeters:   g.RadiusMeters,
		Language:       g.Language,
		Region:         g.Region,
		CacheTTL:       g.CacheTTL,
		RatePerSecond:  g.RatePerSecond,
		AreaResolution: g.AreaResolution,
		AreaRings:      g.AreaRings,
		Timeout:        g.Timeout,
	}
}

// OpenAI converts to the transcription client configuration.
func (t TranscribeConfig) OpenAI() transcribe.Config {
	return transcribe.Config{
		URL:      t.URL,
		APIKey:   t.APIKey,
		Model:    t.Model,
		Language: t.Language,
		Timeout:  t.Timeout,
	}
}
