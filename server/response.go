// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package server

import "github.com/jcodagnone/nemchi/destination"

// NotRecognizedMessage is returned to riders when no destination matched.
const NotRecognizedMessage = "لم نتمكن من تحديد الوجهة"

// DestinationPayload is the resolved destination as sent to clients.
type DestinationPayload struct {
	ID             int     `json:"id"`
	CanonicalName  string  `json:"canonical_name"`
	MatchedVariant string  `json:"matched_variant"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Confidence     float64 `json:"confidence"`
	MatchedBy      string  `json:"matched_by"`
}

// ResolutionResponse is the body of /api/resolve and /api/transcribe.
type ResolutionResponse struct {
	Transcript           string              `json:"transcript"`
	NormalizedTranscript string              `json:"normalized_transcript"`
	Destination          *DestinationPayload `json:"destination"`
	Error                string              `json:"error,omitempty"`
}

// NewResolutionResponse renders res.
func NewResolutionResponse(res destination.Resolution) ResolutionResponse {
	ret := ResolutionResponse{
		Transcript:           res.Transcript.Raw,
		NormalizedTranscript: res.Transcript.Normalized,
	}

	m := res.Match
	if m == nil {
		ret.Error = NotRecognizedMessage

		return ret
	}

	ret.Destination = &DestinationPayload{
		ID:             m.Place.ID,
		CanonicalName:  m.Place.Name,
		MatchedVariant: m.MatchedVariant,
		Lat:            m.Place.Lat,
		Lng:            m.Place.Lng,
		Confidence:     m.Confidence,
		MatchedBy:      string(m.Method),
	}

	return ret
}
