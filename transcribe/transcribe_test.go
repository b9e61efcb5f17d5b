// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package transcribe

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transcriptionsURL = "https://stt.test/v1/audio/transcriptions"

func newTestClient(t *testing.T, apiKey string) (*OpenAIClient, *httpmock.MockTransport) {
	t.Helper()
	t.Setenv(APIKeyEnv, "")

	mock := httpmock.NewMockTransport()
	c := NewOpenAI(Config{
		URL:        "https://stt.test/",
		APIKey:     apiKey,
		Language:   "ar",
		HTTPClient: &http.Client{Transport: mock},
	})

	return c, mock
}

func TestTranscribe(t *testing.T) {
	c, mock := newTestClient(t, "sk-test")

	type captured struct {
		auth, model, language, filename string
		audio                           []byte
	}

	var got captured

	mock.RegisterResponder(http.MethodPost, transcriptionsURL, func(req *http.Request) (*http.Response, error) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			return nil, err
		}

		f, header, err := req.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer f.Close()

		audio, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}

		got = captured{
			auth:     req.Header.Get("Authorization"),
			model:    req.FormValue("model"),
			language: req.FormValue("language"),
			filename: header.Filename,
			audio:    audio,
		}

		return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"text": " نبغي نمشي توجنين \n"})
	})

	text, err := c.Transcribe(context.Background(), []byte("OggS fake"), "audio/ogg; codecs=opus")
	require.NoError(t, err)
	assert.Equal(t, "نبغي نمشي توجنين", text)

	assert.Equal(t, "Bearer sk-test", got.auth)
	assert.Equal(t, DefaultModel, got.model)
	assert.Equal(t, "ar", got.language)
	assert.Equal(t, "audio.ogg", got.filename)
	assert.Equal(t, []byte("OggS fake"), got.audio)
}

func TestTranscribeWithoutKey(t *testing.T) {
	c, mock := newTestClient(t, "")

	var auth string
	mock.RegisterResponder(http.MethodPost, transcriptionsURL, func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")

		return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"text": "لكصر"})
	})

	_, err := c.Transcribe(context.Background(), []byte{1}, "")
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name      string
		audio     []byte
		responder httpmock.Responder
		expected  error
	}{
		{
			name:     "empty audio",
			audio:    nil,
			expected: ErrEmptyAudio,
		},
		{
			name:      "empty transcript",
			audio:     []byte{1},
			responder: httpmock.NewStringResponder(http.StatusOK, `{"text": "  "}`),
			expected:  ErrEmptyTranscript,
		},
		{
			name:      "server error",
			audio:     []byte{1},
			responder: httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":{"message":"bad key"}}`),
		},
		{
			name:      "bad body",
			audio:     []byte{1},
			responder: httpmock.NewStringResponder(http.StatusOK, "nope"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, mock := newTestClient(t, "sk-test")
			if tc.responder != nil {
				mock.RegisterResponder(http.MethodPost, transcriptionsURL, tc.responder)
			}

			text, err := c.Transcribe(context.Background(), tc.audio, "audio/webm")
			require.Error(t, err)
			assert.Empty(t, text)

			if tc.expected != nil {
				require.ErrorIs(t, err, tc.expected)
			}
		})
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"audio/ogg; codecs=opus": ".ogg",
		"audio/mpeg":             ".mp3",
		"audio/x-wav":            ".wav",
		"audio/mp4":              ".m4a",
		"audio/flac":             ".flac",
		"audio/webm;codecs=opus": ".webm",
		"":                       ".webm",
		"AUDIO/WAV":              ".wav",
	}

	for mimeType, expected := range tests {
		assert.Equal(t, expected, extension(mimeType), mimeType)
	}
}

func TestNewOpenAIDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-env")

	c := NewOpenAI(Config{})
	assert.Equal(t, DefaultURL+"/v1/audio/transcriptions", c.endpoint)
	assert.Equal(t, "sk-env", c.apiKey)
	assert.Equal(t, DefaultModel, c.model)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}
