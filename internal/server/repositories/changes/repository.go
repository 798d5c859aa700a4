package changes

import (
	"context"

	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

type Repository interface {
	// NextCursor assigns the next per-user cursor. Must run inside the same
	// transaction as the Append it orders; the row lock it takes is the
	// journal's only serialization point.
	NextCursor(ctx context.Context, userID string) (int64, error)

	Append(ctx context.Context, change *models.Change) error
	GetByID(ctx context.Context, userID, id string) (*models.Change, error)
	ReadSince(ctx context.Context, userID string, cursor int64, limit int) ([]*models.Change, error)
	LatestCursor(ctx context.Context, userID string) (int64, error)

	// LastUnseenForItem returns the most recent change to itemID with a
	// cursor greater than sinceCursor that originates from a device other
	// than excludeDeviceID, or common.ErrorNotFound.
	LastUnseenForItem(ctx context.Context, userID, itemID, excludeDeviceID string, sinceCursor int64) (*models.Change, error)
}
