package service

import (
	"context"
	"time"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

// StatsService assembles the read-only aggregates served to dashboards:
// the subscribe-time snapshot, the system-health document and the
// per-device access statistics.
type StatsService struct {
	devices       store.DeviceStore
	cards         store.CardStore
	registrations store.RegistrationStore
	logs          store.AccessLogStore
	registry      *DeviceRegistry
	startedAt     time.Time
}

func NewStatsService(
	devices store.DeviceStore,
	cards store.CardStore,
	registrations store.RegistrationStore,
	logs store.AccessLogStore,
	registry *DeviceRegistry,
) *StatsService {
	return &StatsService{
		devices:       devices,
		cards:         cards,
		registrations: registrations,
		logs:          logs,
		registry:      registry,
		startedAt:     time.Now().UTC(),
	}
}

// DeviceStatuses returns the currently connected devices.
func (s *StatsService) DeviceStatuses(context.Context) []store.DeviceRecord {
	return s.registry.Connected()
}

func (s *StatsService) PendingRegistrations(ctx context.Context) ([]store.RegistrationRecord, error) {
	return s.registrations.ListPending(ctx)
}

func (s *StatsService) RecentLogs(ctx context.Context, limit int) ([]store.AccessLogRecord, error) {
	return s.logs.Recent(ctx, limit)
}

func (s *StatsService) AccessStats(ctx context.Context) ([]types.DeviceAccessStats, error) {
	return s.logs.StatsByDevice(ctx)
}

// Health builds the aggregate counter document. Subscribers is left for
// the caller to fill in; only the hub knows its own fan-out size.
func (s *StatsService) Health(ctx context.Context) (types.SystemHealth, error) {
	var h types.SystemHealth
	h.Status = "operational"
	h.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())

	total, active, err := s.devices.Counts(ctx)
	if err != nil {
		return types.SystemHealth{}, err
	}
	h.Devices.Total = total
	h.Devices.Active = active

	total, active, err = s.cards.Counts(ctx)
	if err != nil {
		return types.SystemHealth{}, err
	}
	h.Cards.Total = total
	h.Cards.Active = active

	pending, err := s.registrations.CountPending(ctx)
	if err != nil {
		return types.SystemHealth{}, err
	}
	h.PendingRegistrations = pending
	h.ConnectedDevices = len(s.registry.Connected())

	return h, nil
}
