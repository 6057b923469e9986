package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

var (
	ErrInvalidDeviceID    = errors.New("device_id is required")
	ErrDeviceNotConnected = errors.New("device is not connected")
)

// DeviceConn is the live socket handle a connection task registers for its
// device; control messages (registration-mode toggles) go down it.
type DeviceConn interface {
	SendControl(msg any) error
}

type deviceEntry struct {
	conn DeviceConn
	rec  store.DeviceRecord
}

// DeviceRegistry maps connected device identifiers to their connection
// handles. It starts empty on every gateway boot; a device that does not
// re-announce itself after a restart stays absent until its next
// DEVICE_INFO, whatever its persisted record says.
type DeviceRegistry struct {
	devices    store.DeviceStore
	heartbeats store.HeartbeatStore
	events     Broadcaster
	logger     *zap.Logger

	mu      sync.RWMutex
	entries map[string]*deviceEntry
}

func NewDeviceRegistry(devices store.DeviceStore, heartbeats store.HeartbeatStore, events Broadcaster, logger *zap.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		devices:    devices,
		heartbeats: heartbeats,
		events:     events,
		logger:     logger,
		entries:    make(map[string]*deviceEntry),
	}
}

// Register handles DEVICE_INFO: upserts the persisted device, installs the
// connection handle (superseding any previous one for the same id) and
// broadcasts deviceConnected.
func (r *DeviceRegistry) Register(ctx context.Context, deviceID, location string, conn DeviceConn) (store.DeviceRecord, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return store.DeviceRecord{}, ErrInvalidDeviceID
	}

	rec, err := r.devices.Upsert(ctx, deviceID, location, time.Now().UTC())
	if err != nil {
		return store.DeviceRecord{}, err
	}

	r.mu.Lock()
	r.entries[deviceID] = &deviceEntry{conn: conn, rec: rec}
	r.mu.Unlock()

	r.events.Publish(types.EventDeviceConnected, rec)
	return rec, nil
}

// Touch handles HEARTBEAT: lastSeen only, no broadcast. The heartbeat
// trail append is advisory and never fails the device response.
func (r *DeviceRegistry) Touch(ctx context.Context, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return ErrInvalidDeviceID
	}

	now := time.Now().UTC()
	if err := r.devices.Touch(ctx, deviceID, now); err != nil {
		return err
	}

	if err := r.heartbeats.Append(ctx, deviceID, now); err != nil {
		r.logger.Warn("heartbeat trail append failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}

	r.mu.Lock()
	if e, ok := r.entries[deviceID]; ok {
		e.rec.LastSeen = now
	}
	r.mu.Unlock()

	return nil
}

// Remove tears down a closed connection. The conn argument guards against
// a reconnect having superseded this entry: removal only happens if the
// closing connection still owns it.
func (r *DeviceRegistry) Remove(ctx context.Context, deviceID string, conn DeviceConn) {
	r.mu.Lock()
	e, ok := r.entries[deviceID]
	if !ok || e.conn != conn {
		r.mu.Unlock()
		return
	}
	delete(r.entries, deviceID)
	r.mu.Unlock()

	if err := r.devices.SetActive(ctx, deviceID, false); err != nil {
		r.logger.Error("mark device inactive failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}

	r.events.Publish(types.EventDeviceDisconnected, map[string]string{"deviceId": deviceID})
}

// SetRegistrationMode persists the enrollment-mode flag and forwards the
// toggle down the device's live socket. Returns ErrDeviceNotConnected
// (after persisting) when no connection is registered for the device.
func (r *DeviceRegistry) SetRegistrationMode(ctx context.Context, deviceID string, enabled bool) (store.DeviceRecord, error) {
	rec, err := r.devices.SetRegistrationMode(ctx, deviceID, enabled)
	if err != nil {
		return store.DeviceRecord{}, err
	}

	r.mu.Lock()
	e, ok := r.entries[deviceID]
	if ok {
		e.rec.RegistrationMode = enabled
	}
	r.mu.Unlock()

	if !ok {
		return rec, ErrDeviceNotConnected
	}

	push := types.RegistrationModePush{Type: types.MsgRegistrationMode, Enabled: enabled}
	if err := e.conn.SendControl(push); err != nil {
		r.logger.Warn("registration-mode push failed",
			zap.String("device_id", deviceID), zap.Error(err))
		return rec, ErrDeviceNotConnected
	}

	r.events.Publish(types.EventDeviceUpdated, rec)
	return rec, nil
}

// Connected returns the records of currently connected devices.
func (r *DeviceRegistry) Connected() []store.DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]store.DeviceRecord, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.rec)
	}
	return out
}

// ConnectedIDs returns the ids of currently connected devices.
func (r *DeviceRegistry) ConnectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

// Shutdown marks every still-connected device inactive in the store; the
// in-memory map dies with the process.
func (r *DeviceRegistry) Shutdown(ctx context.Context) error {
	return r.devices.DeactivateAll(ctx, r.ConnectedIDs())
}
