// Package hub fans live gateway events out to dashboard subscribers over
// websockets. Delivery is best-effort: a slow or dead subscriber loses its
// oldest buffered events rather than stalling the device-facing path.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

// Snapshotter provides the one-time state a new subscriber receives so
// dashboards converge without polling.
type Snapshotter interface {
	DeviceStatuses(ctx context.Context) []store.DeviceRecord
	Health(ctx context.Context) (types.SystemHealth, error)
	PendingRegistrations(ctx context.Context) ([]store.RegistrationRecord, error)
	RecentLogs(ctx context.Context, limit int) ([]store.AccessLogRecord, error)
	AccessStats(ctx context.Context) ([]types.DeviceAccessStats, error)
}

// DeviceController handles the TOGGLE_REGISTRATION_MODE subscriber command.
type DeviceController interface {
	SetRegistrationMode(ctx context.Context, deviceID string, enabled bool) (store.DeviceRecord, error)
}

type Hub struct {
	logger       *zap.Logger
	snapshotLogs int

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{} // closed when Run exits

	mu      sync.RWMutex
	clients map[*Client]bool

	snap Snapshotter
	ctrl DeviceController
}

func NewHub(logger *zap.Logger, snapshotLogLimit int) *Hub {
	if snapshotLogLimit <= 0 {
		snapshotLogLimit = 100
	}
	return &Hub{
		logger:       logger,
		snapshotLogs: snapshotLogLimit,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan []byte, 256),
		done:         make(chan struct{}),
		clients:      make(map[*Client]bool),
	}
}

// AttachSources wires the snapshot and control dependencies. Must be
// called before Run; it exists because the services that implement these
// interfaces are themselves constructed with the hub as their Broadcaster.
func (h *Hub) AttachSources(snap Snapshotter, ctrl DeviceController) {
	h.snap = snap
	h.ctrl = ctrl
}

// Run owns the subscriber set. It exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.closeOnce()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("dashboard subscriber connected", zap.String("remote", client.remote))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeOnce()
				h.logger.Info("dashboard subscriber disconnected", zap.String("remote", client.remote))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(message)
			}
			h.mu.RUnlock()
		}
	}
}

// Publish implements service.Broadcaster. It never blocks: if the hub's
// inbox is full the event is dropped and counted against the log.
func (h *Hub) Publish(eventType string, data any) {
	msg, err := json.Marshal(types.Event{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("event marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("event dropped, hub inbox full", zap.String("event", eventType))
	}
}

// Subscribers returns the current fan-out size.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		// Dashboards are served from arbitrary origins on the LAN.
		return true
	},
}

// ServeWS upgrades an HTTP request into a dashboard subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn, r.RemoteAddr)

	// Queue the snapshot before the client joins the broadcast set so it
	// sees a consistent baseline first.
	h.sendSnapshot(r.Context(), client)

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Hub) sendSnapshot(ctx context.Context, client *Client) {
	client.sendEvent(types.EventDeviceStatus, h.snap.DeviceStatuses(ctx))

	if health, err := h.snap.Health(ctx); err == nil {
		health.Subscribers = h.Subscribers() + 1 // include the joining client
		client.sendEvent(types.EventSystemHealth, health)
	} else {
		h.logger.Error("snapshot health failed", zap.Error(err))
	}

	if regs, err := h.snap.PendingRegistrations(ctx); err == nil {
		client.sendEvent(types.EventPendingRegistrations, regs)
	} else {
		h.logger.Error("snapshot pending registrations failed", zap.Error(err))
	}

	if logs, err := h.snap.RecentLogs(ctx, h.snapshotLogs); err == nil {
		client.sendEvent(types.EventAccessLogs, logs)
	} else {
		h.logger.Error("snapshot access logs failed", zap.Error(err))
	}
}

// handleCommand processes one inbound subscriber message. Failures are
// reported as an error event on that subscriber's channel only.
func (h *Hub) handleCommand(ctx context.Context, client *Client, raw []byte) {
	var cmd types.SubscriberCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		client.sendEvent(types.EventError, map[string]string{"message": "invalid message"})
		return
	}

	switch cmd.Type {
	case types.CmdGetAccessStats:
		stats, err := h.snap.AccessStats(ctx)
		if err != nil {
			h.logger.Error("access stats failed", zap.Error(err))
			client.sendEvent(types.EventError, map[string]string{"message": "failed to fetch access stats"})
			return
		}
		client.sendEvent(types.EventAccessStats, stats)

	case types.CmdToggleRegistrationMode:
		// Success broadcasts deviceUpdated to everyone via the registry.
		if _, err := h.ctrl.SetRegistrationMode(ctx, cmd.DeviceID, cmd.Enabled); err != nil {
			client.sendEvent(types.EventError, map[string]string{"message": err.Error()})
		}

	default:
		client.sendEvent(types.EventError, map[string]string{"message": "unknown command"})
	}
}
