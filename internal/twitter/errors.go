package twitter

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RateLimitError is returned when X answers 429 Too Many Requests.
type RateLimitError struct {
	Endpoint string
	// ResetAt is parsed from x-rate-limit-reset. Zero when the header is missing.
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("x api %s: rate limited", e.Endpoint)
	}
	return fmt.Sprintf("x api %s: rate limited until %s", e.Endpoint, e.ResetAt.UTC().Format(time.RFC3339))
}

// APIError covers every other failure talking to X: non-2xx responses,
// error-only payloads, undecodable bodies and transport failures.
// StatusCode is 0 when no response was received.
type APIError struct {
	Endpoint   string
	StatusCode int
	Title      string
	Detail     string
	Messages   []string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "x api %s", e.Endpoint)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Title != "" {
		b.WriteString(": " + e.Title)
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	for _, m := range e.Messages {
		if m != e.Detail {
			b.WriteString("; " + m)
		}
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRateLimit reports whether err is or wraps a *RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAPIError reports whether err is or wraps an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
