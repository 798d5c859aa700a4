package models

import "time"

// ItemVersion maps a published version of an item to its durable storage key.
// Version bytes are immutable once published, which is what makes signature
// caching and retry-safe delta uploads possible.
type ItemVersion struct {
	ItemID     string    `json:"itemId"`
	UserID     string    `json:"-"`
	Version    int64     `json:"version"`
	StorageKey string    `json:"-"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
}
