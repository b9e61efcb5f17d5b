// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/jcodagnone/nemchi/gazetteer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generateURL = "http://ollama.test:11434/api/generate"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()

	mock := httpmock.NewMockTransport()
	c := New(Config{
		URL:        "http://ollama.test:11434/",
		Model:      "test-model",
		HTTPClient: &http.Client{Transport: mock},
	})

	return c, mock
}

func testPlaces() []gazetteer.Place {
	return []gazetteer.Place{
		{ID: 2, Name: "Ksar", Variants: []string{"لكصر", "ksar"}},
		{ID: 3, Name: "Toujounine", Variants: []string{"توجنين"}},
	}
}

func answer(response string) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
		"response": response,
		"done":     true,
	})
}

func TestMatchPlace(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		expectedID *int
		confidence float64
	}{
		{"place", `{"place_id": 3, "confidence": 0.91}`, intPtr(3), 0.91},
		{"no place", `{"place_id": null, "confidence": 0}`, nil, 0},
		{"zero id", `{"place_id": 0, "confidence": 0.4}`, nil, 0},
		{"wrapped in text", "```json\n{\"place_id\": 2, \"confidence\": 0.88}\n```", intPtr(2), 0.88},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, mock := newTestClient(t)
			mock.RegisterResponder(http.MethodPost, generateURL, answer(tc.response))

			res, err := c.MatchPlace(context.Background(), "نبغي نمشي تجنين", testPlaces())
			require.NoError(t, err)
			assert.Equal(t, tc.expectedID, res.PlaceID)
			assert.InDelta(t, tc.confidence, res.Confidence, 1e-9)
		})
	}
}

func TestMatchPlaceRequest(t *testing.T) {
	c, mock := newTestClient(t)

	var got generateRequest
	mock.RegisterResponder(http.MethodPost, generateURL, func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			return nil, err
		}

		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"response": `{"place_id": null, "confidence": 0}`})
	})

	_, err := c.MatchPlace(context.Background(), "لكصر", testPlaces())
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Contains(t, got.Prompt, "2: Ksar | لكصر, ksar")
	assert.Contains(t, got.Prompt, "3: Toujounine | توجنين")
	assert.Contains(t, got.Prompt, `"لكصر"`)
}

func TestMatchPlaceSkipsEmpty(t *testing.T) {
	c, mock := newTestClient(t)

	res, err := c.MatchPlace(context.Background(), "  ", testPlaces())
	require.NoError(t, err)
	assert.Nil(t, res.PlaceID)

	res, err = c.MatchPlace(context.Background(), "لكصر", nil)
	require.NoError(t, err)
	assert.Nil(t, res.PlaceID)

	assert.Zero(t, mock.GetTotalCallCount())
}

func TestMatchPlaceErrors(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"http error", httpmock.NewStringResponder(http.StatusInternalServerError, "model not loaded")},
		{"ollama error", httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"error": "out of memory"})},
		{"not json", answer("Ksar")},
		{"bad json", answer(`{"place_id": "two"}`)},
		{"garbage body", httpmock.NewStringResponder(http.StatusOK, "<html>")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, mock := newTestClient(t)
			mock.RegisterResponder(http.MethodPost, generateURL, tc.responder)

			res, err := c.MatchPlace(context.Background(), "لكصر", testPlaces())
			require.Error(t, err)
			assert.Nil(t, res.PlaceID)
		})
	}
}

func TestIsAvailable(t *testing.T) {
	c, mock := newTestClient(t)
	assert.False(t, c.IsAvailable(context.Background()))

	mock.RegisterResponder(http.MethodGet, "http://ollama.test:11434/api/tags",
		httpmock.NewStringResponder(http.StatusOK, `{"models":[]}`))
	assert.True(t, c.IsAvailable(context.Background()))
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func intPtr(v int) *int { return &v }
