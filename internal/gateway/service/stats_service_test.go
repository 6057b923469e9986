package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/store/memory"
)

func TestHealthAggregates(t *testing.T) {
	devices := memory.NewDeviceStore()
	cards := memory.NewCardStore()
	templates := memory.NewTemplateStore()
	registrations := memory.NewRegistrationStore(cards, templates)
	logs := memory.NewAccessLogStore()
	heartbeats := memory.NewHeartbeatStore()

	registry := NewDeviceRegistry(devices, heartbeats, &recordingBroadcaster{}, testLogger())
	svc := NewStatsService(devices, cards, registrations, logs, registry)

	cards.Put(validCard("CARD-1"))
	inactive := validCard("CARD-2")
	inactive.Active = false
	cards.Put(inactive)

	_, err := registry.Register(context.Background(), "GATE-1", "Main Gate", &fakeConn{})
	require.NoError(t, err)
	_, err = devices.Upsert(context.Background(), "GATE-2", "Library", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, devices.SetActive(context.Background(), "GATE-2", false))

	_, err = registrations.Intake(context.Background(), store.IntakeRecord{
		CardID:       "CARD-3",
		DeviceID:     "GATE-1",
		TemplateData: []byte{0x01},
		OccurredAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	h, err := svc.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "operational", h.Status)
	assert.Equal(t, 2, h.Devices.Total)
	assert.Equal(t, 1, h.Devices.Active)
	assert.Equal(t, 2, h.Cards.Total)
	assert.Equal(t, 1, h.Cards.Active)
	assert.Equal(t, 1, h.PendingRegistrations)
	assert.Equal(t, 1, h.ConnectedDevices)
	assert.GreaterOrEqual(t, h.UptimeSeconds, int64(0))
}

func TestDeviceStatusesReflectsRegistry(t *testing.T) {
	devices := memory.NewDeviceStore()
	heartbeats := memory.NewHeartbeatStore()
	registry := NewDeviceRegistry(devices, heartbeats, &recordingBroadcaster{}, testLogger())
	svc := NewStatsService(devices, memory.NewCardStore(), nil, nil, registry)

	assert.Empty(t, svc.DeviceStatuses(context.Background()))

	conn := &fakeConn{}
	_, err := registry.Register(context.Background(), "GATE-1", "Main Gate", conn)
	require.NoError(t, err)

	statuses := svc.DeviceStatuses(context.Background())
	require.Len(t, statuses, 1)
	assert.Equal(t, "GATE-1", statuses[0].DeviceID)

	registry.Remove(context.Background(), "GATE-1", conn)
	assert.Empty(t, svc.DeviceStatuses(context.Background()))
}
