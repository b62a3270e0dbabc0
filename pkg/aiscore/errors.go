package aiscore

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies failures of the model channel.
type ErrorKind string

const (
	KindMissingKey       ErrorKind = "missing_key"
	KindInvalidKeyFormat ErrorKind = "invalid_key_format"
	KindRateLimited      ErrorKind = "rate_limited"
	KindUnauthorized     ErrorKind = "unauthorized"
	KindEmptyResponse    ErrorKind = "empty_response"
	KindParseError       ErrorKind = "parse_error"
	KindTransportFailure ErrorKind = "transport_failure"
)

// Error is the typed failure returned by every Client operation.
type Error struct {
	Kind ErrorKind
	// Status is the HTTP status of the remote failure, 0 if none.
	Status int
	// RetryAfter is the server's retry hint, 0 if none.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("aiscore: ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed: rate
// limits and transient transport failures.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited:
		return true
	case KindTransportFailure:
		return e.Status == 0 || e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// KindOf returns the kind of err, or KindTransportFailure for
// errors that are not an *Error.
func KindOf(err error) ErrorKind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindTransportFailure
}

// FromStatus builds an Error for an HTTP failure status.
func FromStatus(status int, retryAfter time.Duration, err error) *Error {
	kind := KindTransportFailure
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = KindUnauthorized
	case status == http.StatusBadRequest && err != nil &&
		strings.Contains(strings.ToLower(err.Error()), "api key"):
		kind = KindUnauthorized
	}
	return &Error{Kind: kind, Status: status, RetryAfter: retryAfter, Err: err}
}

// UserMessage renders err as short player-facing text.
func UserMessage(err error) string {
	var aerr *Error
	if !errors.As(err, &aerr) {
		return "AI service unavailable"
	}
	switch aerr.Kind {
	case KindMissingKey:
		return "API key required for validation"
	case KindInvalidKeyFormat:
		return "Invalid API key format"
	case KindRateLimited:
		if aerr.RetryAfter > 0 {
			secs := int(math.Ceil(aerr.RetryAfter.Seconds()))
			return fmt.Sprintf("Rate limited by Gemini (HTTP 429). Try again in ~%ds.", secs)
		}
		return "Rate limited by Gemini (HTTP 429)."
	case KindUnauthorized:
		return "API key rejected (401/403). Check restrictions in Google AI Studio."
	case KindEmptyResponse:
		return "AI returned no content"
	case KindParseError:
		return "AI response could not be scored"
	default:
		return "AI service unavailable"
	}
}

// ParseRetryAfter reads a Retry-After value given either in
// seconds or as an HTTP date relative to now.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	diff := when.Sub(now)
	if diff <= 0 {
		return 0, false
	}
	return time.Duration(math.Ceil(diff.Seconds())) * time.Second, true
}

var retryDelayPattern = regexp.MustCompile(`"retryDelay"\s*:\s*"(\d+(?:\.\d+)?)s"`)

// retryDelayFromBody extracts the RetryInfo delay some 429 bodies
// carry instead of a header.
func retryDelayFromBody(body string) (time.Duration, bool) {
	m := retryDelayPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	return ParseRetryAfter(m[1], time.Time{})
}
