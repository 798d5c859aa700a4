// Package models defines server-side data models persisted in the database.
package models

import "time"

// DeviceType classifies a registered client device.
type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "DESKTOP"
	DeviceTypeMobile  DeviceType = "MOBILE"
	DeviceTypeWeb     DeviceType = "WEB"
	DeviceTypeOther   DeviceType = "OTHER"
)

// ValidDeviceType reports whether t is one of the known device types.
func ValidDeviceType(t DeviceType) bool {
	switch t {
	case DeviceTypeDesktop, DeviceTypeMobile, DeviceTypeWeb, DeviceTypeOther:
		return true
	}
	return false
}

// Device is a client device registered for a user. The device id is
// client-chosen and unique per user.
type Device struct {
	UserID     string     `json:"-"`
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	DeviceType DeviceType `json:"deviceType"`
	IsActive   bool       `json:"isActive"`

	// LastCursor is the highest journal cursor the device has pulled.
	// Used to harden conflict detection against stale client claims.
	LastCursor int64      `json:"lastCursor"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
