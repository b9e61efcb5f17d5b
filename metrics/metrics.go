// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus metrics about destination resolution.
package metrics

import (
	"github.com/jcodagnone/nemchi/destination"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nemchi"

// methodNone labels resolutions that found no destination.
const methodNone = "none"

// Metrics holds the resolution collectors. A nil *Metrics records nothing.
type Metrics struct {
	resolutions    *prometheus.CounterVec
	confidence     *prometheus.HistogramVec
	stageAttempts  *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	transcriptions *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Resolved transcripts by the method that matched, or none.",
			},
			[]string{"method"},
		),
		confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_confidence",
				Help:      "Confidence of accepted matches.",
				Buckets:   prometheus.LinearBuckets(0.5, 0.05, 11),
			},
			[]string{"method"},
		),
		stageAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_attempts_total",
				Help:      "Matcher stage attempts by outcome.",
			},
			[]string{"stage", "status"}, // status: matched, no_match, failed
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each matcher stage.",
				// 1ms to ~16s
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"stage"},
		),
		transcriptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcriptions_total",
				Help:      "Audio transcriptions by status.",
			},
			[]string{"status"}, // status: success, error
		),
	}

	for _, c := range []prometheus.Collector{
		m.resolutions, m.confidence, m.stageAttempts, m.stageDuration, m.transcriptions,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveStage records one stage attempt. It matches destination.StageObserver.
func (m *Metrics) ObserveStage(r destination.StageReport) {
	if m == nil {
		return
	}

	stage := string(r.Method)
	m.stageAttempts.WithLabelValues(stage, r.Status.String()).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(r.Duration.Seconds())
}

// ObserveResolution records the final result of a resolution.
func (m *Metrics) ObserveResolution(match *destination.Match) {
	if m == nil {
		return
	}

	if match == nil {
		m.resolutions.WithLabelValues(methodNone).Inc()

		return
	}

	method := string(match.Method)
	m.resolutions.WithLabelValues(method).Inc()
	m.confidence.WithLabelValues(method).Observe(match.Confidence)
}

// ObserveTranscription records a transcription attempt.
func (m *Metrics) ObserveTranscription(err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.transcriptions.WithLabelValues(status).Inc()
}
