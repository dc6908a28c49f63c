// Package throttle shares throttling signals between processes. When the
// service answers 429 or 503 with a Retry-After header, the block is recorded
// in Redis and every client sharing the Redis instance holds its requests to
// the same host until the block ends.
package throttle

import (
	"time"
)

// State is the throttle state of one scope (a service host).
// This state is shared across all client instances via Redis.
type State struct {
	// BlockedUntil is when requests may be sent again.
	BlockedUntil time.Time `json:"blocked_until"`

	// Status is the response status that caused the block (429 or 503).
	Status int `json:"status"`

	// LastUpdate is when the state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether requests must wait at now.
func (s *State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilReset returns the remaining block at now, 0 if none.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
