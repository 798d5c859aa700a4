package devices

import (
	"context"

	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, device *models.Device) (*models.Device, error)
	Get(ctx context.Context, userID, deviceID string) (*models.Device, error)
	List(ctx context.Context, userID string, activeOnly bool) ([]*models.Device, error)
	Deactivate(ctx context.Context, userID, deviceID string) error
	Remove(ctx context.Context, userID, deviceID string) error
	TouchSync(ctx context.Context, userID, deviceID string, cursor int64) error
}
