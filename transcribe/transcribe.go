// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcribe turns recorded speech into text.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultURL      = "https://api.openai.com"
	DefaultModel    = "whisper-1"
	DefaultLanguage = "ar"
	DefaultTimeout  = 60 * time.Second

	// APIKeyEnv is read when Config.APIKey is empty.
	APIKeyEnv = "OPENAI_API_KEY"
)

var (
	ErrEmptyAudio      = errors.New("empty audio")
	ErrEmptyTranscript = errors.New("empty transcript")
)

// Transcriber converts audio to text. mimeType is a hint of the encoding.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Config configures an OpenAI compatible transcription client.
type Config struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration

	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration, without an API key.
func DefaultConfig() Config {
	return Config{
		URL:      DefaultURL,
		Model:    DefaultModel,
		Language: DefaultLanguage,
		Timeout:  DefaultTimeout,
	}
}

// OpenAIClient calls the /v1/audio/transcriptions endpoint. Self-hosted
// servers exposing the same API work as well; the key is then optional.
type OpenAIClient struct {
	endpoint   string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

var _ Transcriber = (*OpenAIClient)(nil)

// NewOpenAI creates a client. Empty fields take their defaults.
func NewOpenAI(cfg Config) *OpenAIClient {
	def := DefaultConfig()

	url := strings.TrimRight(cfg.URL, "/")
	if url == "" {
		url = def.URL
	}

	model := cfg.Model
	if model == "" {
		model = def.Model
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(APIKeyEnv)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OpenAIClient{
		endpoint:   url + "/v1/audio/transcriptions",
		apiKey:     apiKey,
		model:      model,
		language:   cfg.Language,
		httpClient: httpClient,
	}
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	fw, err := writer.CreateFormFile("file", "audio"+extension(mimeType))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}

	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}

	fields := [][2]string{
		{"model", c.model},
		{"response_format", "json"},
	}
	if c.language != "" {
		fields = append(fields, [2]string{"language", c.language})
	}

	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("writing field %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return "", fmt.Errorf("transcription status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	log.Printf("transcribe: %d bytes in %v", len(audio), time.Since(start).Round(time.Millisecond))

	return text, nil
}

// extension picks a file extension for mimeType so that the server can
// detect the container. Unknown types are assumed to be WebM, the browser
// recording default.
func extension(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}

	switch mediaType {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return ".wav"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	default:
		return ".webm"
	}
}
