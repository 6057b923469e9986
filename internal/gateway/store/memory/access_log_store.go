package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

// AccessLogStore is an in-memory append-only audit log.
type AccessLogStore struct {
	mu      sync.Mutex
	entries []store.AccessLogRecord

	// FailNext makes the next Insert return this error; lets tests force
	// the audit-write failure path.
	FailNext error
}

func NewAccessLogStore() *AccessLogStore {
	return &AccessLogStore{}
}

func (s *AccessLogStore) Insert(_ context.Context, rec store.AccessLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return err
	}

	rec.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, rec)
	return nil
}

func (s *AccessLogStore) Recent(_ context.Context, limit int) ([]store.AccessLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	out := make([]store.AccessLogRecord, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *AccessLogStore) StatsByDevice(_ context.Context) ([]types.DeviceAccessStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDevice := make(map[string]*types.DeviceAccessStats)
	for _, rec := range s.entries {
		st, ok := byDevice[rec.DeviceID]
		if !ok {
			st = &types.DeviceAccessStats{DeviceID: rec.DeviceID, Location: rec.Location}
			byDevice[rec.DeviceID] = st
		}
		st.Total++
		if rec.Authorized {
			st.Authorized++
		} else {
			st.Unauthorized++
		}
	}

	out := make([]types.DeviceAccessStats, 0, len(byDevice))
	for _, st := range byDevice {
		out = append(out, *st)
	}
	return out, nil
}

// Entries returns a copy of all recorded entries. Test-only helper.
func (s *AccessLogStore) Entries() []store.AccessLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.AccessLogRecord, len(s.entries))
	copy(out, s.entries)
	return out
}

type heartbeat struct {
	deviceID   string
	receivedAt time.Time
}

type HeartbeatStore struct {
	mu    sync.Mutex
	beats []heartbeat
}

func NewHeartbeatStore() *HeartbeatStore {
	return &HeartbeatStore{}
}

func (s *HeartbeatStore) Append(_ context.Context, deviceID string, receivedAt time.Time) error {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.beats = append(s.beats, heartbeat{deviceID: deviceID, receivedAt: receivedAt})
	return nil
}

func (s *HeartbeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.beats[:0]
	var deleted int64
	for _, b := range s.beats {
		if b.receivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, b)
	}
	s.beats = kept
	return deleted, nil
}

// Len returns the number of stored heartbeats. Test-only helper.
func (s *HeartbeatStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.beats)
}
