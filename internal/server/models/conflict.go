package models

import "time"

// ConflictType classifies how two concurrent changes collide.
type ConflictType string

const (
	ConflictConcurrentModify ConflictType = "CONCURRENT_MODIFY"
	ConflictModifyDelete     ConflictType = "MODIFY_DELETE"
	ConflictConcurrentMove   ConflictType = "CONCURRENT_MOVE"
)

// Resolution is the client-chosen policy applied to a conflict.
type Resolution string

const (
	ResolutionKeepLocal  Resolution = "KEEP_LOCAL"
	ResolutionKeepRemote Resolution = "KEEP_REMOTE"
	ResolutionKeepBoth   Resolution = "KEEP_BOTH"
)

// ValidResolution reports whether r is one of the known resolutions.
func ValidResolution(r Resolution) bool {
	switch r {
	case ResolutionKeepLocal, ResolutionKeepRemote, ResolutionKeepBoth:
		return true
	}
	return false
}

// Conflict records that two devices changed the same item without having
// seen each other's change. Both changes stay in the journal; the conflict
// row is resolved later by explicit client action.
type Conflict struct {
	ID           string       `json:"id"`
	UserID       string       `json:"-"`
	ItemID       string       `json:"itemId"`
	ConflictType ConflictType `json:"conflictType"`

	// LocalChangeID references the change already in the journal,
	// RemoteChangeID the incoming one that collided with it.
	LocalChangeID  string `json:"localChangeId"`
	RemoteChangeID string `json:"remoteChangeId"`

	// Resolution is empty until the conflict is resolved.
	Resolution Resolution `json:"resolution,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Resolved reports whether a resolution has been applied.
func (c *Conflict) Resolved() bool {
	return c.Resolution != ""
}
