// Package devices provides the PostgreSQL-backed device registry repository.
package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/dbx"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
)

// PostgresRepository implements device storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert registers a device, keyed by (user_id, device_id). A re-registration
// updates name/type and reactivates the device; history is untouched.
func (r *PostgresRepository) Upsert(ctx context.Context, device *models.Device) (*models.Device, error) {
	query := `
		INSERT INTO devices (user_id, device_id, device_name, device_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, device_id)
		DO UPDATE SET
			device_name = EXCLUDED.device_name,
			device_type = EXCLUDED.device_type,
			is_active = TRUE
		RETURNING is_active, last_cursor, last_sync_at, created_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		device.UserID, device.DeviceID, device.DeviceName, device.DeviceType).
		Scan(&device.IsActive, &device.LastCursor, &device.LastSyncAt, &device.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return device, nil
}

// Get returns a single device or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	query := `
		SELECT user_id, device_id, device_name, device_type, is_active, last_cursor, last_sync_at, created_at
		FROM devices
		WHERE user_id = $1 AND device_id = $2;
	`
	d := &models.Device{}
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(
		&d.UserID, &d.DeviceID, &d.DeviceName, &d.DeviceType,
		&d.IsActive, &d.LastCursor, &d.LastSyncAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

// List returns the user's devices, optionally only active ones, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, activeOnly bool) ([]*models.Device, error) {
	query := `
		SELECT user_id, device_id, device_name, device_type, is_active, last_cursor, last_sync_at, created_at
		FROM devices
		WHERE user_id = $1 AND (NOT $2 OR is_active)
		ORDER BY created_at DESC;
	`
	rows, err := r.db.QueryContext(ctx, query, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to select devices: %w", err)
	}
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		d := &models.Device{}
		if err := rows.Scan(
			&d.UserID, &d.DeviceID, &d.DeviceName, &d.DeviceType,
			&d.IsActive, &d.LastCursor, &d.LastSyncAt, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Deactivate marks the device inactive. Changes already attributed to it
// remain in the journal.
func (r *PostgresRepository) Deactivate(ctx context.Context, userID, deviceID string) error {
	query := `UPDATE devices SET is_active = FALSE WHERE user_id = $1 AND device_id = $2;`
	return r.execExpectingRow(ctx, query, userID, deviceID)
}

// Remove hard-deletes the device record only; journal rows keep the now
// dangling origin device id as a historical fact.
func (r *PostgresRepository) Remove(ctx context.Context, userID, deviceID string) error {
	query := `DELETE FROM devices WHERE user_id = $1 AND device_id = $2;`
	return r.execExpectingRow(ctx, query, userID, deviceID)
}

// TouchSync records a completed pull: bumps last_sync_at and ratchets the
// device's high-water cursor (never backwards).
func (r *PostgresRepository) TouchSync(ctx context.Context, userID, deviceID string, cursor int64) error {
	query := `
		UPDATE devices
		SET last_sync_at = now(), last_cursor = GREATEST(last_cursor, $3)
		WHERE user_id = $1 AND device_id = $2;
	`
	return r.execExpectingRow(ctx, query, userID, deviceID, cursor)
}

func (r *PostgresRepository) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
