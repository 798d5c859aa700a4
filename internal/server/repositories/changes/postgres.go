// Package changes provides the PostgreSQL-backed append-only change journal.
package changes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

// PostgresRepository implements the change journal over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const changeColumns = `id, user_id, item_id, change_type, origin_device_id, old_path, new_path, checksum, conflicted, cursor, created_at`

// NextCursor increments and returns the user's cursor counter with a single
// conditional-increment statement. Concurrent appends for the same user
// serialize on the sync_cursors row lock until their transaction commits.
func (r *PostgresRepository) NextCursor(ctx context.Context, userID string) (int64, error) {
	query := `
		INSERT INTO sync_cursors (user_id, current_cursor)
		VALUES ($1, 1)
		ON CONFLICT (user_id)
		DO UPDATE SET current_cursor = sync_cursors.current_cursor + 1
		RETURNING current_cursor;
	`
	var cursor int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&cursor); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return cursor, nil
}

// Append inserts one journal row. Rows are immutable; there is no update path.
func (r *PostgresRepository) Append(ctx context.Context, c *models.Change) error {
	query := `
		INSERT INTO changes (id, user_id, item_id, change_type, origin_device_id, old_path, new_path, checksum, conflicted, cursor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.UserID, c.ItemID, c.ChangeType, c.OriginDeviceID,
		c.OldPath, c.NewPath, c.Checksum, c.Conflicted, c.Cursor).
		Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns a change by its idempotency key or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Change, error) {
	query := `SELECT ` + changeColumns + ` FROM changes WHERE user_id = $1 AND id = $2;`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, id))
}

// ReadSince returns up to limit changes with cursor strictly greater than
// cursor, in cursor order. Repeated calls with the same arguments return the
// same rows until new changes are appended.
func (r *PostgresRepository) ReadSince(ctx context.Context, userID string, cursor int64, limit int) ([]*models.Change, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM changes
		WHERE user_id = $1 AND cursor > $2
		ORDER BY cursor
		LIMIT $3;
	`
	rows, err := r.db.QueryContext(ctx, query, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select changes: %w", err)
	}
	defer rows.Close()

	var result []*models.Change
	for rows.Next() {
		c := &models.Change{}
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.ItemID, &c.ChangeType, &c.OriginDeviceID,
			&c.OldPath, &c.NewPath, &c.Checksum, &c.Conflicted, &c.Cursor, &c.CreatedAt,
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

// LatestCursor returns the user's current cursor position, 0 for an empty journal.
func (r *PostgresRepository) LatestCursor(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COALESCE(current_cursor, 0) FROM sync_cursors WHERE user_id = $1;`
	var cursor int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return cursor, nil
}

// LastUnseenForItem finds the newest change to the item, past sinceCursor,
// from a different device. Runs inside the append transaction so the answer
// is consistent with the cursor being assigned.
func (r *PostgresRepository) LastUnseenForItem(ctx context.Context, userID, itemID, excludeDeviceID string, sinceCursor int64) (*models.Change, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM changes
		WHERE user_id = $1 AND item_id = $2 AND cursor > $3 AND origin_device_id <> $4
		ORDER BY cursor DESC
		LIMIT 1;
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, itemID, sinceCursor, excludeDeviceID))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Change, error) {
	c := &models.Change{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.ItemID, &c.ChangeType, &c.OriginDeviceID,
		&c.OldPath, &c.NewPath, &c.Checksum, &c.Conflicted, &c.Cursor, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}
