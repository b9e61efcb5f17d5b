// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode searches the Google Places index for destinations that are
// not in the gazetteer.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jcodagnone/nemchi/destination"
	"github.com/jcodagnone/nemchi/spatial"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

// Config configures the Places client.
type Config struct {
	APIKey  string
	BaseURL string

	// RadiusMeters biases the search around the anchor.
	RadiusMeters int
	Language     string
	Region       string

	// CacheTTL is how long answers, including empty ones, are remembered.
	CacheTTL time.Duration

	// RatePerSecond bounds outbound requests. Zero disables the limit.
	RatePerSecond float64

	// AreaResolution and AreaRings describe the h3 disk around the anchor
	// outside of which results are discarded. A zero resolution disables the
	// filter.
	AreaResolution int
	AreaRings      int

	Timeout    time.Duration
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration, without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		RadiusMeters:   15000,
		Language:       "fr",
		Region:         "mr",
		CacheTTL:       time.Hour,
		RatePerSecond:  5,
		AreaResolution: 7,
		AreaRings:      12,
		Timeout:        10 * time.Second,
	}
}

// Client is a destination.GeocodeSearcher backed by Places text search.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter

	mu    sync.Mutex
	areas map[spatial.Point]*spatial.Area
}

var _ destination.GeocodeSearcher = (*Client)(nil)

// New creates a Places client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		cache:      cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		limiter:    rate.NewLimiter(limit, 1),
		areas:      make(map[spatial.Point]*spatial.Area),
	}, nil
}

type placesResponse struct {
	Results []struct {
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, OVER_QUERY_LIMIT...
	ErrorMessage string `json:"error_message"`
}

// Search returns the best result for query near anchor, or nil when there is
// none inside the search area.
func (c *Client) Search(ctx context.Context, query string, anchor spatial.Point) (*destination.GeocodeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := fmt.Sprintf("%s|%.5f,%.5f", query, anchor.Lat, anchor.Lng)
	if cached, found := c.cache.Get(key); found {
		if res, ok := cached.(*destination.GeocodeResult); ok {
			return res, nil
		}
	}

	res, err := c.search(ctx, query, anchor)
	if errors.Is(err, ErrNoResults) {
		c.cache.SetDefault(key, (*destination.GeocodeResult)(nil))

		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(key, res)

	return res, nil
}

func (c *Client) search(ctx context.Context, query string, anchor spatial.Point) (*destination.GeocodeResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Type: ErrorTypeTimeout, Message: "waiting for rate limiter", Err: err}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("key", c.cfg.APIKey)
	params.Set("location", fmt.Sprintf("%f,%f", anchor.Lat, anchor.Lng))

	if c.cfg.RadiusMeters > 0 {
		params.Set("radius", strconv.Itoa(c.cfg.RadiusMeters))
	}

	if c.cfg.Language != "" {
		params.Set("language", c.cfg.Language)
	}

	if c.cfg.Region != "" {
		params.Set("region", c.cfg.Region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Type: ErrorTypeTimeout, Message: "places request timed out", Err: err}
		}

		return nil, &Error{Type: ErrorTypeNetworkError, Message: "places request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var pr placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	switch pr.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResults
	default:
		return nil, classifyStatus(pr.Status, pr.ErrorMessage)
	}

	area, err := c.area(anchor)
	if err != nil {
		return nil, err
	}

	for _, r := range pr.Results {
		p := spatial.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
		if !p.Valid() || (area != nil && !area.Contains(p)) {
			continue
		}

		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = strings.TrimSpace(r.FormattedAddress)
		}

		return &destination.GeocodeResult{Name: name, Point: p}, nil
	}

	log.Printf("places: %d results for %q, none inside the area", len(pr.Results), query)

	return nil, ErrNoResults
}

// area returns the h3 disk around anchor, or nil when filtering is off.
func (c *Client) area(anchor spatial.Point) (*spatial.Area, error) {
	if c.cfg.AreaResolution <= 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.areas[anchor]; ok {
		return a, nil
	}

	a, err := spatial.NewArea(anchor, c.cfg.AreaResolution, c.cfg.AreaRings)
	if err != nil {
		return nil, fmt.Errorf("building search area: %w", err)
	}

	c.areas[anchor] = a

	return a, nil
}

// Flush drops every cached answer.
func (c *Client) Flush() {
	c.cache.Flush()
}
