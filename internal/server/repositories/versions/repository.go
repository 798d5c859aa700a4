package versions

import (
	"context"

	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

// Repository is the narrow interface the sync engine consumes from the
// file-versioning subsystem. Retention policy lives elsewhere; the engine
// only needs version numbers and their storage keys.
type Repository interface {
	NextVersion(ctx context.Context, userID, itemID string) (int64, error)
	Create(ctx context.Context, version *models.ItemVersion) error
	Get(ctx context.Context, userID, itemID string, version int64) (*models.ItemVersion, error)
	Latest(ctx context.Context, userID, itemID string) (*models.ItemVersion, error)
	FindByChecksum(ctx context.Context, userID, itemID, checksum string) (*models.ItemVersion, error)
}
