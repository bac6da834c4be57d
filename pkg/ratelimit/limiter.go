package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idmap_rate_limit_waits_total",
		Help: "Total number of requests delayed by the client-side limiter",
	})

	rateLimitBackoffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idmap_rate_limit_backoffs_total",
		Help: "Total number of server-requested pauses (Retry-After)",
	})
)

// Limiter is a token bucket shared by every request a client makes. It is
// safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu           sync.Mutex
	blockedUntil time.Time
}

// NewLimiter creates a limiter allowing rps requests per second with the
// given burst. rps <= 0 disables rate limiting.
func NewLimiter(rps float64, burst int, logger zerolog.Logger) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	pause := time.Until(l.blockedUntil)
	l.mu.Unlock()

	if pause > 0 {
		rateLimitWaitsTotal.Inc()
		l.logger.Debug().Dur("pause", pause).Msg("Waiting for server-requested pause")
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if !l.limiter.Allow() {
		rateLimitWaitsTotal.Inc()
		if err := l.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	return nil
}

// Backoff pauses all callers for at least d. Shorter pauses never shrink an
// existing one.
func (l *Limiter) Backoff(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.blockedUntil) {
		l.blockedUntil = until
		rateLimitBackoffsTotal.Inc()
		l.logger.Warn().
			Dur("pause", d).
			Time("blocked_until", until).
			Msg("Service requested pause")
	}
}

// State returns a snapshot of the limiter.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Limit:        float64(l.limiter.Limit()),
		Burst:        l.limiter.Burst(),
		BlockedUntil: l.blockedUntil,
		LastUpdate:   time.Now(),
	}
}
