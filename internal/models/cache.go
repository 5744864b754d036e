package models

import (
	"encoding/json"
	"time"
)

// ContentType partitions both upstream Xtream actions and cache keys.
type ContentType string

const (
	ContentLive   ContentType = "live"
	ContentVod    ContentType = "vod"
	ContentSeries ContentType = "series"
)

// ParseContentType validates a type query parameter.
func ParseContentType(s string) (ContentType, bool) {
	switch ContentType(s) {
	case ContentLive, ContentVod, ContentSeries:
		return ContentType(s), true
	}
	return "", false
}

// CacheEntry holds the last full unfiltered listing fetched for one
// (credential, content type) pair. At most one row exists per pair;
// writes are upserts and entries never expire on their own.
type CacheEntry struct {
	ID           int64           `json:"id,omitempty"`
	UserID       string          `json:"user_id"`
	CredentialID string          `json:"credential_id"`
	Type         ContentType     `json:"type"`
	Data         json.RawMessage `json:"data"`
	CachedAt     time.Time       `json:"cached_at"`
}
