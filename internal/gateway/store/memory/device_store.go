// Package memory holds in-memory store implementations for tests and dev
// environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]store.DeviceRecord
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{devices: make(map[string]store.DeviceRecord)}
}

func (s *DeviceStore) Upsert(_ context.Context, deviceID, location string, seen time.Time) (store.DeviceRecord, error) {
	if seen.IsZero() {
		seen = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.devices[deviceID]
	if !ok {
		rec = store.DeviceRecord{DeviceID: deviceID}
	}
	rec.Location = location
	rec.Active = true
	rec.LastSeen = seen
	s.devices[deviceID] = rec
	return rec, nil
}

func (s *DeviceStore) Touch(_ context.Context, deviceID string, seen time.Time) error {
	if seen.IsZero() {
		seen = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.devices[deviceID]; ok {
		rec.LastSeen = seen
		s.devices[deviceID] = rec
	}
	return nil
}

func (s *DeviceStore) SetActive(_ context.Context, deviceID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.devices[deviceID]; ok {
		rec.Active = active
		s.devices[deviceID] = rec
	}
	return nil
}

func (s *DeviceStore) SetRegistrationMode(_ context.Context, deviceID string, enabled bool) (store.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.devices[deviceID]
	if !ok {
		return store.DeviceRecord{}, store.ErrDeviceNotFound
	}
	rec.RegistrationMode = enabled
	s.devices[deviceID] = rec
	return rec, nil
}

func (s *DeviceStore) Get(_ context.Context, deviceID string) (store.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.devices[deviceID]
	if !ok {
		return store.DeviceRecord{}, store.ErrDeviceNotFound
	}
	return rec, nil
}

func (s *DeviceStore) List(_ context.Context) ([]store.DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.DeviceRecord, 0, len(s.devices))
	for _, rec := range s.devices {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (s *DeviceStore) DeactivateAll(_ context.Context, deviceIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range deviceIDs {
		if rec, ok := s.devices[id]; ok {
			rec.Active = false
			s.devices[id] = rec
		}
	}
	return nil
}

func (s *DeviceStore) Counts(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, rec := range s.devices {
		if rec.Active {
			active++
		}
	}
	return len(s.devices), active, nil
}
