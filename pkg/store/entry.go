package store

import (
	"encoding/json"
	"time"
)

// Entry is the stored envelope around a JSON value.
type Entry struct {
	// Data is the JSON encoded value
	Data json.RawMessage `json:"data"`

	// Expires is when the value becomes invalid. Zero means never.
	Expires time.Time `json:"expires,omitzero"`

	// StoredAt is when the value was written
	StoredAt time.Time `json:"stored_at"`
}

// IsExpired returns true if the entry has an expiry in the past.
func (e *Entry) IsExpired() bool {
	return !e.Expires.IsZero() && time.Now().After(e.Expires)
}

// TTL returns the time until expiration, 0 for entries that never expire
// and a negative duration for expired ones.
func (e *Entry) TTL() time.Duration {
	if e.Expires.IsZero() {
		return 0
	}
	ttl := time.Until(e.Expires)
	if ttl <= 0 {
		return -1
	}
	return ttl
}
