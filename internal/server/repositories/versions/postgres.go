// Package versions provides the PostgreSQL-backed item version registry.
package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

// PostgresRepository implements version storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const versionColumns = `item_id, user_id, version, storage_key, checksum, size, created_at`

// NextVersion returns the next version number for an item. The primary key
// on (item_id, version) catches the rare race between two concurrent
// publishes; the loser's transaction fails and the client retries.
func (r *PostgresRepository) NextVersion(ctx context.Context, userID, itemID string) (int64, error) {
	query := `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM item_versions
		WHERE user_id = $1 AND item_id = $2;
	`
	var version int64
	if err := r.db.QueryRowContext(ctx, query, userID, itemID).Scan(&version); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

// Create publishes a new immutable version record.
func (r *PostgresRepository) Create(ctx context.Context, v *models.ItemVersion) error {
	query := `
		INSERT INTO item_versions (item_id, user_id, version, storage_key, checksum, size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		v.ItemID, v.UserID, v.Version, v.StorageKey, v.Checksum, v.Size).
		Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns one version or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID, itemID string, version int64) (*models.ItemVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM item_versions WHERE user_id = $1 AND item_id = $2 AND version = $3;`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, itemID, version))
}

// Latest returns the newest version of an item or common.ErrorNotFound.
func (r *PostgresRepository) Latest(ctx context.Context, userID, itemID string) (*models.ItemVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM item_versions
		WHERE user_id = $1 AND item_id = $2
		ORDER BY version DESC
		LIMIT 1;
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, itemID))
}

// FindByChecksum returns the newest version of an item carrying the given
// checksum, or common.ErrorNotFound. Conflict resolution uses it to locate
// the stored bytes behind a journal entry.
func (r *PostgresRepository) FindByChecksum(ctx context.Context, userID, itemID, checksum string) (*models.ItemVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM item_versions
		WHERE user_id = $1 AND item_id = $2 AND checksum = $3
		ORDER BY version DESC
		LIMIT 1;
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, itemID, checksum))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.ItemVersion, error) {
	v := &models.ItemVersion{}
	err := row.Scan(&v.ItemID, &v.UserID, &v.Version, &v.StorageKey, &v.Checksum, &v.Size, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}
