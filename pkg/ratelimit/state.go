// Package ratelimit gates outgoing requests to the mapping service with a
// token bucket and honors server-requested pauses (Retry-After).
package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// State is a point-in-time snapshot of the limiter.
type State struct {
	// Limit is the sustained request rate in requests per second.
	Limit float64 `json:"limit"`

	// Burst is the token bucket size.
	Burst int `json:"burst"`

	// BlockedUntil is set when the server asked us to pause.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the snapshot was taken.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked returns true while a server-requested pause is in effect.
func (s State) IsBlocked() bool {
	return s.LastUpdate.Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining pause. Returns 0 if not blocked.
func (s State) TimeUntilUnblocked() time.Duration {
	d := s.BlockedUntil.Sub(s.LastUpdate)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter reads a Retry-After header given either as delay seconds
// or as an HTTP date. Returns 0 when absent or unparseable.
func ParseRetryAfter(headers http.Header, now time.Time) time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
