package tcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/service"
	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/store/memory"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

type sessionFixture struct {
	srv       *Server
	registry  *service.DeviceRegistry
	cards     *memory.CardStore
	templates *memory.TemplateStore
	logs      *memory.AccessLogStore

	client *bufio.Reader
	conn   net.Conn
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	devices := memory.NewDeviceStore()
	cards := memory.NewCardStore()
	templates := memory.NewTemplateStore()
	registrations := memory.NewRegistrationStore(cards, templates)
	logs := memory.NewAccessLogStore()
	heartbeats := memory.NewHeartbeatStore()

	logger := zap.NewNop()
	events := service.NopBroadcaster{}

	registry := service.NewDeviceRegistry(devices, heartbeats, events, logger)
	access := service.NewAccessService(cards, templates, devices, logs, events, logger)
	enrollment := service.NewEnrollmentService(registrations, events, logger)

	srv := New(Config{}, registry, access, enrollment, logger)

	now := time.Now().UTC()
	cards.Put(store.CardRecord{
		CardID:     "card-001",
		HolderName: "Ada Lovelace",
		Type:       "student",
		ValidFrom:  now.AddDate(0, -1, 0),
		ValidUntil: now.AddDate(1, 0, 0),
		Active:     true,
	})
	templates.Put(store.TemplateRecord{CardID: "card-001", TemplateData: []byte{0x01}})

	clientConn, serverConn := net.Pipe()
	sess := newSession(srv, serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.serve(ctx)
	}()
	t.Cleanup(func() {
		clientConn.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("session did not exit")
		}
	})

	return &sessionFixture{
		srv:       srv,
		registry:  registry,
		cards:     cards,
		templates: templates,
		logs:      logs,
		client:    bufio.NewReader(clientConn),
		conn:      clientConn,
	}
}

// send writes one message and returns the single-line response.
func (f *sessionFixture) send(t *testing.T, msg types.DeviceMessage) string {
	t.Helper()

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	f.conn.SetDeadline(time.Now().Add(time.Second))
	_, err = f.conn.Write(append(raw, '\n'))
	require.NoError(t, err)

	line, err := f.client.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSpace(line)
}

func TestSessionDeviceInfoRegisters(t *testing.T) {
	f := newSessionFixture(t)

	resp := f.send(t, types.DeviceMessage{
		Type:     types.MsgDeviceInfo,
		DeviceID: "gate-001",
		Location: "Main Gate",
	})
	assert.Equal(t, "OK", resp)
	assert.Equal(t, []string{"gate-001"}, f.registry.ConnectedIDs())
}

func TestSessionHeartbeat(t *testing.T) {
	f := newSessionFixture(t)

	resp := f.send(t, types.DeviceMessage{Type: types.MsgDeviceInfo, DeviceID: "gate-001"})
	require.Equal(t, "OK", resp)

	// device_id may be omitted once the session is identified.
	resp = f.send(t, types.DeviceMessage{Type: types.MsgHeartbeat})
	assert.Equal(t, "OK", resp)
}

func TestSessionAccessDecision(t *testing.T) {
	f := newSessionFixture(t)

	resp := f.send(t, types.DeviceMessage{Type: types.MsgDeviceInfo, DeviceID: "gate-001", Location: "Main Gate"})
	require.Equal(t, "OK", resp)

	resp = f.send(t, types.DeviceMessage{
		Type:       types.MsgAccess,
		CardID:     "card-001",
		Authorized: true,
		Accuracy:   99.1,
	})
	assert.Equal(t, "OK", resp)

	resp = f.send(t, types.DeviceMessage{
		Type:   types.MsgAccess,
		CardID: "unknown-card",
	})
	assert.Equal(t, "UNAUTHORIZED", resp)

	// Both attempts audited.
	assert.Len(t, f.logs.Entries(), 2)
}

func TestSessionRegistrationIntake(t *testing.T) {
	f := newSessionFixture(t)

	resp := f.send(t, types.DeviceMessage{Type: types.MsgDeviceInfo, DeviceID: "gate-001"})
	require.Equal(t, "OK", resp)

	msg := types.DeviceMessage{
		Type:         types.MsgRegistration,
		CardID:       "card-new",
		TemplateData: "dGVtcGxhdGU=",
		FingerID:     3,
	}
	assert.Equal(t, "OK", f.send(t, msg))
	assert.Equal(t, "DUPLICATE", f.send(t, msg))

	// The claimed sensor slot rode along into the stored template.
	tpl, err := f.templates.Get(context.Background(), "card-new")
	require.NoError(t, err)
	assert.Equal(t, int64(3), tpl.FingerprintID)
}

func TestSessionNextFingerID(t *testing.T) {
	f := newSessionFixture(t)

	resp := f.send(t, types.DeviceMessage{Type: types.MsgNextFingerID})
	assert.Equal(t, "1", resp)

	resp = f.send(t, types.DeviceMessage{Type: types.MsgNextFingerID})
	assert.Equal(t, "2", resp)
}

func TestSessionUnknownCommand(t *testing.T) {
	f := newSessionFixture(t)

	resp := f.send(t, types.DeviceMessage{Type: "SELF_DESTRUCT"})
	assert.Equal(t, "INVALID_COMMAND", resp)
}

func TestSessionMalformedMessageKeepsConnection(t *testing.T) {
	f := newSessionFixture(t)

	f.conn.SetDeadline(time.Now().Add(time.Second))
	_, err := f.conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	line, err := f.client.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ERROR", strings.TrimSpace(line))

	// The line framing resynchronizes; the device retries on the same
	// connection.
	resp := f.send(t, types.DeviceMessage{Type: types.MsgDeviceInfo, DeviceID: "gate-001"})
	assert.Equal(t, "OK", resp)
	assert.Equal(t, []string{"gate-001"}, f.registry.ConnectedIDs())
}

func TestSessionDisconnectRemovesDevice(t *testing.T) {
	f := newSessionFixture(t)

	resp := f.send(t, types.DeviceMessage{Type: types.MsgDeviceInfo, DeviceID: "gate-001"})
	require.Equal(t, "OK", resp)

	f.conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(f.registry.ConnectedIDs()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("device still registered after disconnect")
}
