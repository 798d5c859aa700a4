package models

import "time"

// ChangeType is the kind of item mutation recorded in the change journal.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeModify ChangeType = "MODIFY"
	ChangeDelete ChangeType = "DELETE"
	ChangeMove   ChangeType = "MOVE"
)

// ValidChangeType reports whether t is one of the known change types.
func ValidChangeType(t ChangeType) bool {
	switch t {
	case ChangeCreate, ChangeModify, ChangeDelete, ChangeMove:
		return true
	}
	return false
}

// Change is one row of the append-only per-user change journal. Rows are
// immutable once appended; the cursor is assigned at append time and defines
// the journal's total order for the user.
type Change struct {
	// ID doubles as a client-suppliable idempotency key. The server generates
	// one when the client does not.
	ID             string     `json:"id"`
	UserID         string     `json:"-"`
	ItemID         string     `json:"itemId"`
	ChangeType     ChangeType `json:"changeType"`
	OriginDeviceID string     `json:"originDeviceId"`

	// OldPath and NewPath are set for MOVE changes; NewPath alone for CREATE.
	OldPath string `json:"oldPath,omitempty"`
	NewPath string `json:"newPath,omitempty"`

	// Checksum is the whole-file strong checksum after the change,
	// empty for DELETE.
	Checksum string `json:"checksum,omitempty"`

	// Conflicted marks a change that collided with another device's unseen
	// change; clients pulling it should surface resolution UI.
	Conflicted bool `json:"conflicted"`

	Cursor    int64     `json:"cursor"`
	CreatedAt time.Time `json:"timestamp"`
}
