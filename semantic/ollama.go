// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package semantic asks a local Ollama model which gazetteer place a
// transcript refers to.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jcodagnone/nemchi/destination"
	"github.com/jcodagnone/nemchi/gazetteer"
)

const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "qwen2.5:3b"
	DefaultTimeout = 10 * time.Second
)

var errNoJSON = errors.New("no JSON object in model response")

// Config configures the Ollama client.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		URL:     DefaultURL,
		Model:   DefaultModel,
		Timeout: DefaultTimeout,
	}
}

// Client is a destination.SemanticMatcher backed by the Ollama generate API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ destination.SemanticMatcher = (*Client)(nil)

// New creates a client. Empty fields take their defaults.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	url := strings.TrimRight(cfg.URL, "/")
	if url == "" {
		url = DefaultURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    url,
		model:      model,
		httpClient: httpClient,
	}
}

type generateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Format  string `json:"format"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Model returns the model in use.
func (c *Client) Model() string {
	return c.model
}

// MatchPlace asks the model to pick one of places for transcript. A model
// that names no place, or a non-positive id, yields a nil PlaceID with
// confidence 0.
func (c *Client) MatchPlace(ctx context.Context, transcript string, places []gazetteer.Place) (destination.SemanticResult, error) {
	var none destination.SemanticResult

	if strings.TrimSpace(transcript) == "" || len(places) == 0 {
		return none, nil
	}

	req := generateRequest{
		Model:  c.model,
		Prompt: buildPrompt(transcript, places),
		Stream: false,
		Format: "json",
	}
	req.Options.Temperature = 0
	req.Options.NumPredict = 64

	body, err := json.Marshal(req)
	if err != nil {
		return none, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return none, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return none, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return none, fmt.Errorf("ollama error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return none, fmt.Errorf("decode response: %w", err)
	}

	if result.Error != "" {
		return none, fmt.Errorf("ollama: %s", result.Error)
	}

	ret, err := parseAnswer(result.Response)
	if err != nil {
		return none, err
	}

	log.Printf("semantic: %q -> %v (%.2f) in %v", transcript, placeIDString(ret.PlaceID), ret.Confidence,
		time.Since(start).Round(time.Millisecond))

	return ret, nil
}

// IsAvailable reports whether the Ollama server answers.
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func buildPrompt(transcript string, places []gazetteer.Place) string {
	var sb strings.Builder

	sb.WriteString("A passenger in Nouakchott told a driver where they want to go. ")
	sb.WriteString("The speech was transcribed automatically and may be misspelled. ")
	sb.WriteString("It is usually Hassaniya Arabic, sometimes French.\n\n")
	sb.WriteString("Known places (id: name | spellings):\n")

	for _, p := range places {
		fmt.Fprintf(&sb, "%d: %s | %s\n", p.ID, p.Name, strings.Join(p.Variants, ", "))
	}

	fmt.Fprintf(&sb, "\nTranscript: %q\n\n", transcript)
	sb.WriteString(`Answer with a JSON object {"place_id": <id or null>, "confidence": <0 to 1>}. `)
	sb.WriteString("Use null and 0 when the transcript names none of the known places.")

	return sb.String()
}

// parseAnswer decodes the model answer, tolerating text around the object.
func parseAnswer(s string) (destination.SemanticResult, error) {
	var ret destination.SemanticResult

	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ret, fmt.Errorf("%w: %q", errNoJSON, s)
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), &ret); err != nil {
		return ret, fmt.Errorf("decode answer %q: %w", s, err)
	}

	if ret.PlaceID == nil || *ret.PlaceID <= 0 {
		return destination.SemanticResult{}, nil
	}

	return ret, nil
}

func placeIDString(id *int) string {
	if id == nil {
		return "none"
	}

	return fmt.Sprint(*id)
}
