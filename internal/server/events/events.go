// Package events publishes outbound notifications after successful journal
// appends, decoupling the sync engine from metadata/plugin consumers. Publish
// failures are reported to the caller but never roll back the append.
package events

import (
	"context"

	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

// ChangeRecorded is emitted once per committed journal append.
type ChangeRecorded struct {
	UserID string        `json:"userId"`
	Change models.Change `json:"change"`
}

// Publisher delivers ChangeRecorded events to interested subscribers.
type Publisher interface {
	PublishChange(ctx context.Context, event ChangeRecorded) error
}
