// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes destination resolution over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/nemchi/destination"
	"github.com/jcodagnone/nemchi/gazetteer"
	"github.com/jcodagnone/nemchi/history"
	"github.com/jcodagnone/nemchi/metrics"
	"github.com/jcodagnone/nemchi/transcribe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultMaxUploadBytes caps uploads when Options.MaxUploadBytes is unset.
	DefaultMaxUploadBytes = 10 << 20

	audioField = "audio"
)

// Options holds the collaborators of a Server. Only Gazetteer and Resolver
// are required.
type Options struct {
	Gazetteer   *gazetteer.Gazetteer
	Resolver    *destination.Resolver
	Transcriber transcribe.Transcriber
	History     history.Repository
	Metrics     *metrics.Metrics

	// Gatherer backs /metrics, which is not routed when nil.
	Gatherer prometheus.Gatherer

	MaxUploadBytes int64
}

// Server answers destination queries for one gazetteer.
type Server struct {
	gazetteer      *gazetteer.Gazetteer
	resolver       *destination.Resolver
	transcriber    transcribe.Transcriber
	history        history.Repository
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	maxUploadBytes int64
	now            func() time.Time
}

// New creates a Server. A non-positive MaxUploadBytes selects
// DefaultMaxUploadBytes.
func New(opts Options) *Server {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	return &Server{
		gazetteer:      opts.Gazetteer,
		resolver:       opts.Resolver,
		transcriber:    opts.Transcriber,
		history:        opts.History,
		metrics:        opts.Metrics,
		gatherer:       opts.Gatherer,
		maxUploadBytes: maxUpload,
		now:            time.Now,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", s.healthz)
	r.GET("/api/places", s.listPlaces)
	r.POST("/api/resolve", s.resolveText)
	r.POST("/api/transcribe", s.transcribeAudio)

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return r
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Printf("🚕 listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "places": s.gazetteer.Len()})
}

func (s *Server) listPlaces(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"city":   s.gazetteer.City(),
		"anchor": s.gazetteer.Anchor(),
		"places": s.gazetteer.Places(),
	})
}

type resolveRequest struct {
	Transcript string `json:"transcript"`
}

func (s *Server) resolveText(ctx *gin.Context) {
	var req resolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})

		return
	}

	ctx.JSON(http.StatusOK, s.resolve(ctx.Request.Context(), req.Transcript, "text"))
}

func (s *Server) transcribeAudio(ctx *gin.Context) {
	if s.transcriber == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "transcription is not configured"})

		return
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, s.maxUploadBytes)

	audio, mimeType, err := s.readAudio(ctx)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio is too large"})

			return
		}

		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if len(audio) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": transcribe.ErrEmptyAudio.Error()})

		return
	}

	text, err := s.transcriber.Transcribe(ctx.Request.Context(), audio, mimeType)
	s.metrics.ObserveTranscription(err)

	if err != nil {
		log.Printf("transcription failed: %v", err)
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "transcription failed"})

		return
	}

	ctx.JSON(http.StatusOK, s.resolve(ctx.Request.Context(), text, "audio"))
}

// readAudio takes the audio from the multipart field or, for any other
// content type, from the raw body.
func (s *Server) readAudio(ctx *gin.Context) ([]byte, string, error) {
	if !strings.HasPrefix(ctx.ContentType(), "multipart/") {
		audio, err := io.ReadAll(ctx.Request.Body)

		return audio, ctx.ContentType(), err
	}

	header, err := ctx.FormFile(audioField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", errors.New("missing audio field")
		}

		return nil, "", err
	}

	return readPart(header)
}

func readPart(header *multipart.FileHeader) ([]byte, string, error) {
	f, err := header.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	audio, err := io.ReadAll(f)

	return audio, header.Header.Get("Content-Type"), err
}

func (s *Server) resolve(ctx context.Context, transcript, source string) ResolutionResponse {
	res := s.resolver.Run(ctx, transcript, s.gazetteer)
	s.metrics.ObserveResolution(res.Match)

	if s.history != nil {
		if err := s.history.Save(ctx, history.NewRecord(res, source, s.now())); err != nil {
			log.Printf("saving history: %v", err)
		}
	}

	return NewResolutionResponse(res)
}
