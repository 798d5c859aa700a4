package conflicts

import (
	"context"

	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, conflict *models.Conflict) error
	GetByID(ctx context.Context, userID, id string) (*models.Conflict, error)
	ListPending(ctx context.Context, userID string) ([]*models.Conflict, error)

	// MarkResolved records the resolution for a still-pending conflict.
	// Returns false without error when the conflict was already resolved.
	MarkResolved(ctx context.Context, userID, id string, resolution models.Resolution) (bool, error)
}
