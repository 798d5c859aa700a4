package events

import (
	"context"

	"github.com/dmitrijs2005/syncdrive/internal/logging"
)

// LogPublisher writes events to the structured log. It is the default when no
// queue is configured and keeps the publish path exercised in development.
type LogPublisher struct {
	logger logging.Logger
}

func NewLogPublisher(l logging.Logger) *LogPublisher {
	return &LogPublisher{logger: l.With("module", "events")}
}

func (p *LogPublisher) PublishChange(ctx context.Context, event ChangeRecorded) error {
	p.logger.Info(ctx, "change recorded",
		"user_id", event.UserID,
		"item_id", event.Change.ItemID,
		"change_type", event.Change.ChangeType,
		"cursor", event.Change.Cursor,
	)
	return nil
}
