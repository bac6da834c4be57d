package cache

import (
	"time"

	"github.com/Sternrassler/idmapping-client/pkg/format"
)

// CacheEntry is the cached outcome of one mapping chunk.
type CacheEntry struct {
	// JobID of the job that produced the result.
	JobID string `json:"job_id"`

	// Result is the merged result set of the chunk.
	Result *format.ResultSet `json:"result"`

	// UnmatchedIDs is the locally reconciled complement.
	UnmatchedIDs []string `json:"unmatched_ids,omitempty"`

	// Reconciled reports whether UnmatchedIDs could be computed.
	Reconciled bool `json:"reconciled"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this result.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry valid for ttl.
func NewEntry(jobID string, result *format.ResultSet, unmatched []string, reconciled bool, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		JobID:        jobID,
		Result:       result,
		UnmatchedIDs: unmatched,
		Reconciled:   reconciled,
		Expires:      now.Add(ttl),
		CachedAt:     now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
