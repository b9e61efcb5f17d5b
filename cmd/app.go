// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jcodagnone/nemchi/config"
	"github.com/jcodagnone/nemchi/destination"
	"github.com/jcodagnone/nemchi/gazetteer"
	"github.com/jcodagnone/nemchi/geocode"
	"github.com/jcodagnone/nemchi/history"
	"github.com/jcodagnone/nemchi/metrics"
	"github.com/jcodagnone/nemchi/semantic"
	"github.com/jcodagnone/nemchi/transcribe"
	"github.com/jcodagnone/nemchi/utils/httputils"
	"github.com/prometheus/client_golang/prometheus"
)

// app is the set of collaborators a command works with.
type app struct {
	cfg         *config.Config
	gazetteer   *gazetteer.Gazetteer
	resolver    *destination.Resolver
	transcriber transcribe.Transcriber
	history     history.Repository
	metrics     *metrics.Metrics
	registry    *prometheus.Registry

	db *sql.DB
}

type appOptions struct {
	// LocalOnly skips the fallback stages.
	LocalOnly bool

	WithTranscriber bool
	WithHistory     bool
	WithMetrics     bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(globalOptions.ConfigPath)
	if err != nil {
		return nil, err
	}

	return buildApp(ctx, cfg, opts)
}

func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	rt := &app{cfg: cfg}

	g, err := loadGazetteer(cfg.GazetteerPath)
	if err != nil {
		return nil, err
	}

	rt.gazetteer = g

	var resolverOpts []destination.Option

	if opts.WithMetrics {
		rt.registry = prometheus.NewRegistry()

		if rt.metrics, err = metrics.New(rt.registry); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}

		resolverOpts = append(resolverOpts, destination.WithObserver(rt.metrics.ObserveStage))
	}

	if !opts.LocalOnly {
		fallbacks, err := fallbackOptions(ctx, cfg)
		if err != nil {
			return nil, err
		}

		resolverOpts = append(resolverOpts, fallbacks...)
	}

	if rt.resolver, err = destination.NewResolver(cfg.Resolver.Destination(), resolverOpts...); err != nil {
		return nil, err
	}

	if opts.WithTranscriber {
		tc := cfg.Transcribe.OpenAI()
		tc.HTTPClient = newHTTPClient(tc.Timeout)
		rt.transcriber = transcribe.NewOpenAI(tc)
	}

	if opts.WithHistory && cfg.HistoryPath != "" {
		if rt.db, rt.history, err = history.Open(cfg.HistoryPath); err != nil {
			return nil, err
		}
	}

	return rt, nil
}

func fallbackOptions(ctx context.Context, cfg *config.Config) ([]destination.Option, error) {
	var ret []destination.Option

	if cfg.Semantic.Enabled {
		sc := cfg.Semantic.Client()
		sc.HTTPClient = newHTTPClient(sc.Timeout)

		client := semantic.New(sc)
		if !client.IsAvailable(ctx) {
			log.Printf("⚠️  ollama is not reachable at %s, semantic fallback will fail", sc.URL)
		}

		ret = append(ret, destination.WithSemanticMatcher(client))
	}

	if cfg.Geocode.Enabled {
		key, err := geocode.ResolveAPIKey(ctx, cfg.Geocode.APIKey, cfg.Geocode.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("geocoding fallback: %w", err)
		}

		gc := cfg.Geocode.Places(key)
		gc.HTTPClient = newHTTPClient(gc.Timeout)

		client, err := geocode.New(gc)
		if err != nil {
			return nil, fmt.Errorf("geocoding fallback: %w", err)
		}

		ret = append(ret, destination.WithGeocodeSearcher(client))
	}

	return ret, nil
}

func loadGazetteer(path string) (*gazetteer.Gazetteer, error) {
	if path == "" {
		return gazetteer.Default(), nil
	}

	g, err := gazetteer.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading gazetteer: %w", err)
	}

	return g, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	opts := httputils.ClientOptions{
		Timeout:   timeout,
		UserAgent: fmt.Sprintf("nemchi/%s (+https://github.com/jcodagnone/nemchi)", Version),
	}

	if globalOptions.TraceHTTP || globalOptions.TraceHTTPBody {
		opts.TraceWriter = os.Stderr
		opts.TraceBody = globalOptions.TraceHTTPBody
	}

	return httputils.NewClient(opts)
}

func (rt *app) Close() error {
	if rt.db != nil {
		return rt.db.Close()
	}

	return nil
}
