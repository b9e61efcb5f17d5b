// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package httputils

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRoundTripper keeps the last request and answers with a fixed body.
type recordingRoundTripper struct {
	lastRequest *http.Request
	body        string
	err         error
}

func (d *recordingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	d.lastRequest = req
	if d.err != nil {
		return nil, d.err
	}

	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(d.body)),
		Request:    req,
	}, nil
}

func TestLoggingRoundTripper(t *testing.T) {
	var logBuffer bytes.Buffer

	lt := &LoggingRoundTripper{
		Transport: &recordingRoundTripper{body: "response body"},
		Writer:    &logBuffer,
		DumpBody:  true,
	}

	req, err := http.NewRequest(http.MethodGet, "https://maps.test/textsearch/json?query=ksar&key=SECRET", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sk-SECRET")

	resp, err := lt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	logContent := logBuffer.String()
	assert.Contains(t, logContent, "> GET /textsearch/json?query=ksar&key=[redacted]")
	assert.Contains(t, logContent, "> Authorization: [redacted]")
	assert.Contains(t, logContent, "< RESPONSE: [")
	assert.Contains(t, logContent, "response body")
	assert.NotContains(t, logContent, "SECRET")
}

func TestLoggingRoundTripperWithoutBody(t *testing.T) {
	var logBuffer bytes.Buffer

	lt := &LoggingRoundTripper{
		Transport: &recordingRoundTripper{body: "response body"},
		Writer:    &logBuffer,
	}

	req, err := http.NewRequest(http.MethodPost, "http://example.com/api", strings.NewReader("request body"))
	require.NoError(t, err)

	resp, err := lt.RoundTrip(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "response body", string(body))

	assert.Contains(t, logBuffer.String(), "> POST /api")
	assert.NotContains(t, logBuffer.String(), "request body")
	assert.NotContains(t, logBuffer.String(), "response body")
}

func TestLoggingRoundTripperError(t *testing.T) {
	var logBuffer bytes.Buffer

	lt := &LoggingRoundTripper{
		Transport: &recordingRoundTripper{err: errors.New("connection refused")},
		Writer:    &logBuffer,
	}

	req, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)

	_, err = lt.RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, logBuffer.String(), "< ERROR: [")
}

func TestAppendRequestHeadersRoundTripper(t *testing.T) {
	dummy := &recordingRoundTripper{}
	atr := &AppendRequestHeadersRoundTripper{
		Transport: dummy,
		Headers:   map[string]string{"X-Test-Header": "TestValue"},
	}

	req, err := http.NewRequest(http.MethodPost, "http://example.org", nil)
	require.NoError(t, err)

	_, err = atr.RoundTrip(req)
	require.NoError(t, err)

	require.NotNil(t, dummy.lastRequest)
	assert.Equal(t, "TestValue", dummy.lastRequest.Header.Get("X-Test-Header"))
	assert.Empty(t, req.Header.Get("X-Test-Header"), "the original request is left untouched")
}

func TestNewClient(t *testing.T) {
	var logBuffer bytes.Buffer

	dummy := &recordingRoundTripper{body: "{}"}
	client := NewClient(ClientOptions{
		TraceWriter: &logBuffer,
		UserAgent:   "nemchi/test",
		Headers:     map[string]string{"X-Client": "cli"},
		Transport:   dummy,
	})

	resp, err := client.Get("http://example.com/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "nemchi/test", dummy.lastRequest.Header.Get("User-Agent"))
	assert.Equal(t, "cli", dummy.lastRequest.Header.Get("X-Client"))
	assert.Contains(t, logBuffer.String(), "> User-Agent: nemchi/test")

	plain := NewClient(ClientOptions{})
	assert.Equal(t, http.DefaultTransport, plain.Transport)
}
