// Package services contains server-side business logic. This file implements
// DeviceService, which manages the per-user registry of sync clients.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/syncdrive/internal/common"
	"github.com/dmitrijs2005/syncdrive/internal/server/models"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/repomanager"
)

// DeviceService provides device registry operations:
// - Register: idempotent upsert, reactivates a previously deactivated device
// - List: all or active-only devices for a user
// - Deactivate: excludes a device from sync while keeping its history
// - Remove: hard-deletes the device record
type DeviceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewDeviceService constructs a DeviceService using the shared repositories.
func NewDeviceService(db *sql.DB, m repomanager.RepositoryManager) *DeviceService {
	return &DeviceService{db: db, repomanager: m}
}

// Register upserts a device for the user. The device id is client-chosen;
// a blank id is rejected. Re-registering an existing device updates its name
// and type and reactivates it.
func (s *DeviceService) Register(ctx context.Context, userID string, device *models.Device) (*models.Device, error) {
	if device.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", common.ErrorValidation)
	}
	if device.DeviceType == "" {
		device.DeviceType = models.DeviceTypeOther
	}
	if !models.ValidDeviceType(device.DeviceType) {
		return nil, fmt.Errorf("%w: unknown device type %q", common.ErrorValidation, device.DeviceType)
	}

	device.UserID = userID

	repo := s.repomanager.Devices(s.db)
	d, err := repo.Upsert(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("error registering device: %v", err)
	}
	return d, nil
}

// List returns the user's devices, optionally filtered to active ones.
func (s *DeviceService) List(ctx context.Context, userID string, activeOnly bool) ([]*models.Device, error) {
	repo := s.repomanager.Devices(s.db)
	return repo.List(ctx, userID, activeOnly)
}

// Deactivate excludes a device from sync. The journal entries it produced
// are kept.
func (s *DeviceService) Deactivate(ctx context.Context, userID, deviceID string) error {
	repo := s.repomanager.Devices(s.db)
	return repo.Deactivate(ctx, userID, deviceID)
}

// Remove hard-deletes a device registration.
func (s *DeviceService) Remove(ctx context.Context, userID, deviceID string) error {
	repo := s.repomanager.Devices(s.db)
	return repo.Remove(ctx, userID, deviceID)
}
