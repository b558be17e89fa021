package models

import "time"

// CacheEntry is a stored query result keyed by the hash of the exact query
// text. At most one live entry exists per distinct hash; an entry past
// ExpiresAt must never be returned by lookup even if still physically stored.
type CacheEntry struct {
	ID           string    `json:"id"`
	QueryHash    string    `json:"query_hash"`
	Query        string    `json:"query"`
	ResultData   string    `json:"result_data"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
