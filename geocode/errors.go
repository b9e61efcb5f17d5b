// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoResults is returned when the index has nothing for the query
	// inside the search area.
	ErrNoResults = errors.New("no geocoding results")

	// ErrMissingAPIKey is returned when no Maps API key could be found.
	ErrMissingAPIKey = errors.New("missing Google Maps API key")
)

// Error is a classified geocoding failure.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies geocoding failures.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeRateLimit
	ErrorTypeQuotaExceeded
	ErrorTypeTimeout
	ErrorTypeNotFound
	ErrorTypeInvalidRequest
	ErrorTypeNetworkError
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeQuotaExceeded:
		return "quota_exceeded"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeNetworkError:
		return "network"
	default:
		return "unknown"
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var geoErr *Error
	if errors.As(err, &geoErr) {
		return geoErr.Type
	}

	return ErrorTypeUnknown
}

// IsRateLimitError reports whether err is caused by rate limiting.
func IsRateLimitError(err error) bool {
	var geoErr *Error
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether err is caused by an exhausted quota.
func IsQuotaExceededError(err error) bool {
	var geoErr *Error
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeQuotaExceeded
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	var geoErr *Error
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeTimeout
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// ClassifyHTTPError maps an HTTP status code of the index to an Error.
func ClassifyHTTPError(statusCode int, body string) *Error {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}

	var cause error
	if body != "" {
		cause = errors.New(body)
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return &Error{Type: ErrorTypeRateLimit, Message: "rate limit reached", Err: cause}
	case http.StatusForbidden:
		return &Error{Type: ErrorTypeQuotaExceeded, Message: "quota exceeded or access denied", Err: cause}
	case http.StatusBadRequest:
		return &Error{Type: ErrorTypeInvalidRequest, Message: "invalid request", Err: cause}
	case http.StatusNotFound:
		return &Error{Type: ErrorTypeNotFound, Message: "not found", Err: cause}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &Error{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
			Err:     cause,
		}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: fmt.Sprintf("HTTP error %d", statusCode), Err: cause}
	}
}

// classifyStatus maps a Places API "status" field other than OK and
// ZERO_RESULTS to an Error.
func classifyStatus(status, message string) *Error {
	var cause error
	if message != "" {
		cause = errors.New(message)
	}

	switch status {
	case "OVER_QUERY_LIMIT":
		return &Error{Type: ErrorTypeQuotaExceeded, Message: "places: over_query_limit", Err: cause}
	case "REQUEST_DENIED":
		return &Error{Type: ErrorTypeQuotaExceeded, Message: "places: request denied", Err: cause}
	case "INVALID_REQUEST":
		return &Error{Type: ErrorTypeInvalidRequest, Message: "places: invalid request", Err: cause}
	case "NOT_FOUND":
		return &Error{Type: ErrorTypeNotFound, Message: "places: not found", Err: cause}
	case "UNKNOWN_ERROR":
		return &Error{Type: ErrorTypeNetworkError, Message: "places: server error", Err: cause}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: "places: status " + status, Err: cause}
	}
}
