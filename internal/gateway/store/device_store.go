package store

import (
	"context"
	"time"
)

type DeviceRecord struct {
	DeviceID         string    `json:"deviceId"`
	Location         string    `json:"location"`
	Active           bool      `json:"active"`
	RegistrationMode bool      `json:"registrationMode"`
	LastSeen         time.Time `json:"lastSeen"`
}

// DeviceStore persists reader/controller units. Rows are never deleted,
// only deactivated.
type DeviceStore interface {
	// Upsert creates or refreshes a device on DEVICE_INFO: sets location,
	// active=true and lastSeen.
	Upsert(ctx context.Context, deviceID, location string, seen time.Time) (DeviceRecord, error)

	// Touch updates lastSeen only (heartbeats).
	Touch(ctx context.Context, deviceID string, seen time.Time) error

	// SetActive flips the active flag, e.g. on disconnect.
	SetActive(ctx context.Context, deviceID string, active bool) error

	// SetRegistrationMode persists the enrollment-mode flag.
	// Returns ErrDeviceNotFound for unknown devices.
	SetRegistrationMode(ctx context.Context, deviceID string, enabled bool) (DeviceRecord, error)

	Get(ctx context.Context, deviceID string) (DeviceRecord, error)
	List(ctx context.Context) ([]DeviceRecord, error)

	// DeactivateAll marks the given devices inactive; used at shutdown for
	// every connection still registered.
	DeactivateAll(ctx context.Context, deviceIDs []string) error

	// Counts returns (total, active) for health reporting.
	Counts(ctx context.Context) (int, int, error)
}
