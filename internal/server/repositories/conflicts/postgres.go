// Package conflicts provides the PostgreSQL-backed conflict repository.
package conflicts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

// PostgresRepository implements conflict storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const conflictColumns = `id, user_id, item_id, conflict_type, local_change_id, remote_change_id, resolution, created_at, resolved_at`

// Create inserts a conflict row referencing the two colliding changes.
func (r *PostgresRepository) Create(ctx context.Context, c *models.Conflict) error {
	query := `
		INSERT INTO conflicts (id, user_id, item_id, conflict_type, local_change_id, remote_change_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.UserID, c.ItemID, c.ConflictType, c.LocalChangeID, c.RemoteChangeID).
		Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns a conflict or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE user_id = $1 AND id = $2;`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, id))
}

// ListPending returns unresolved conflicts, oldest first.
func (r *PostgresRepository) ListPending(ctx context.Context, userID string) ([]*models.Conflict, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM conflicts
		WHERE user_id = $1 AND resolution = ''
		ORDER BY created_at;
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.Conflict
	for rows.Next() {
		c := &models.Conflict{}
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.ItemID, &c.ConflictType,
			&c.LocalChangeID, &c.RemoteChangeID, &c.Resolution, &c.CreatedAt, &c.ResolvedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkResolved sets the resolution on a pending conflict. The guard on
// resolution = '' makes resolution first-writer-wins and repeat calls no-ops.
func (r *PostgresRepository) MarkResolved(ctx context.Context, userID, id string, resolution models.Resolution) (bool, error) {
	query := `
		UPDATE conflicts
		SET resolution = $3, resolved_at = now()
		WHERE user_id = $1 AND id = $2 AND resolution = '';
	`
	res, err := r.db.ExecContext(ctx, query, userID, id, resolution)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Conflict, error) {
	c := &models.Conflict{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.ItemID, &c.ConflictType,
		&c.LocalChangeID, &c.RemoteChangeID, &c.Resolution, &c.CreatedAt, &c.ResolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}
