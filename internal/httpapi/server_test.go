package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/hub"
	"github.com/campusgate/gatekeeper/internal/gateway/service"
	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/store/memory"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
	"github.com/campusgate/gatekeeper/internal/httpapi"
)

type apiFixture struct {
	ts            *httptest.Server
	devices       *memory.DeviceStore
	registry      *service.DeviceRegistry
	registrations *memory.RegistrationStore
	logs          *memory.AccessLogStore
	enrollment    *service.EnrollmentService
}

type apiDeviceConn struct{}

func (apiDeviceConn) SendControl(any) error { return nil }

// newTestServer wires up the full dependency graph using in-memory stores
// and returns an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T) *apiFixture {
	t.Helper()

	logger := zap.NewNop()

	devices := memory.NewDeviceStore()
	cards := memory.NewCardStore()
	templates := memory.NewTemplateStore()
	registrations := memory.NewRegistrationStore(cards, templates)
	logs := memory.NewAccessLogStore()
	heartbeats := memory.NewHeartbeatStore()

	eventHub := hub.NewHub(logger, 10)
	registry := service.NewDeviceRegistry(devices, heartbeats, eventHub, logger)
	enrollment := service.NewEnrollmentService(registrations, eventHub, logger)
	stats := service.NewStatsService(devices, cards, registrations, logs, registry)
	eventHub.AttachSources(stats, registry)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       ":0",
		Devices:    devices,
		Registry:   registry,
		Enrollment: enrollment,
		Stats:      stats,
		Hub:        eventHub,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &apiFixture{
		ts:            ts,
		devices:       devices,
		registry:      registry,
		registrations: registrations,
		logs:          logs,
		enrollment:    enrollment,
	}
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestListDevices(t *testing.T) {
	f := newTestServer(t)

	_, err := f.devices.Upsert(context.Background(), "gate-001", "Main Gate", time.Now().UTC())
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}

	var devices []store.DeviceRecord
	resp := getJSON(t, f.ts.URL+"/api/devices", &devices)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(devices) != 1 || devices[0].DeviceID != "gate-001" {
		t.Errorf("unexpected device list: %+v", devices)
	}
}

func TestRegistrationMode_UnknownDevice(t *testing.T) {
	f := newTestServer(t)

	resp := postJSON(t, f.ts.URL+"/api/devices/ghost/registration-mode", `{"enabled":true}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRegistrationMode_DisconnectedDevice(t *testing.T) {
	f := newTestServer(t)

	_, err := f.devices.Upsert(context.Background(), "gate-001", "Main Gate", time.Now().UTC())
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}

	resp := postJSON(t, f.ts.URL+"/api/devices/gate-001/registration-mode", `{"enabled":true}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// The flag persisted even though the push could not be delivered.
	rec, err := f.devices.Get(context.Background(), "gate-001")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if !rec.RegistrationMode {
		t.Error("expected registration mode persisted")
	}
}

func TestRegistrationMode_ConnectedDevice(t *testing.T) {
	f := newTestServer(t)

	_, err := f.registry.Register(context.Background(), "gate-001", "Main Gate", apiDeviceConn{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	resp := postJSON(t, f.ts.URL+"/api/devices/gate-001/registration-mode", `{"enabled":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var rec store.DeviceRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rec.RegistrationMode {
		t.Error("expected registration mode enabled in response")
	}
}

func TestRegistrationMode_BadBody(t *testing.T) {
	f := newTestServer(t)

	resp := postJSON(t, f.ts.URL+"/api/devices/gate-001/registration-mode", `{nope`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestApprovalFlow(t *testing.T) {
	f := newTestServer(t)

	reg, err := f.enrollment.Intake(context.Background(), service.IntakeRequest{
		CardID:       "card-new",
		DeviceID:     "gate-001",
		TemplateData: "dGVtcGxhdGU=",
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	// Pending list shows the candidate.
	var pending []store.RegistrationRecord
	getJSON(t, f.ts.URL+"/api/pending-registrations", &pending)
	if len(pending) != 1 || pending[0].RegID != reg.RegID {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	url := f.ts.URL + "/api/pending-registrations/" + reg.RegID + "/approve"

	resp := postJSON(t, url, `{"holder_name":"Grace Hopper","type":"wizard"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad card type, got %d", resp.StatusCode)
	}

	resp = postJSON(t, url, `{"holder_name":"Grace Hopper","type":"faculty"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var approval store.ApprovalRecord
	if err := json.NewDecoder(resp.Body).Decode(&approval); err != nil {
		t.Fatalf("decode approval: %v", err)
	}
	if approval.Card.CardID != "card-new" {
		t.Errorf("expected approved card card-new, got %q", approval.Card.CardID)
	}

	// Second approval conflicts.
	resp = postJSON(t, url, `{"holder_name":"Grace Hopper","type":"faculty"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on re-approve, got %d", resp.StatusCode)
	}
}

func TestApproveUnknownRegistration(t *testing.T) {
	f := newTestServer(t)

	resp := postJSON(t, f.ts.URL+"/api/pending-registrations/ghost/approve",
		`{"holder_name":"Grace Hopper","type":"faculty"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRejectFlow(t *testing.T) {
	f := newTestServer(t)

	reg, err := f.enrollment.Intake(context.Background(), service.IntakeRequest{
		CardID:       "card-new",
		DeviceID:     "gate-001",
		TemplateData: "dGVtcGxhdGU=",
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	url := f.ts.URL + "/api/pending-registrations/" + reg.RegID + "/reject"

	resp := postJSON(t, url, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = postJSON(t, url, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on re-reject, got %d", resp.StatusCode)
	}
}

func TestAccessLogsLimitValidation(t *testing.T) {
	f := newTestServer(t)

	resp := getJSON(t, f.ts.URL+"/api/access-logs?limit=0", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", resp.StatusCode)
	}

	resp = getJSON(t, f.ts.URL+"/api/access-logs?limit=5000", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", resp.StatusCode)
	}
}

func TestAccessLogsReturnsEntries(t *testing.T) {
	f := newTestServer(t)

	err := f.logs.Insert(context.Background(), store.AccessLogRecord{
		CardID:     "card-001",
		DeviceID:   "gate-001",
		HolderName: "Ada Lovelace",
		OccurredAt: time.Now().UTC(),
		Authorized: true,
	})
	if err != nil {
		t.Fatalf("seed log: %v", err)
	}

	var logs []store.AccessLogRecord
	resp := getJSON(t, f.ts.URL+"/api/access-logs?limit=10", &logs)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(logs) != 1 || logs[0].CardID != "card-001" {
		t.Errorf("unexpected logs: %+v", logs)
	}
}

func TestAccessStats(t *testing.T) {
	f := newTestServer(t)

	for i := 0; i < 3; i++ {
		err := f.logs.Insert(context.Background(), store.AccessLogRecord{
			CardID:     "card-001",
			DeviceID:   "gate-001",
			OccurredAt: time.Now().UTC(),
			Authorized: i < 2,
		})
		if err != nil {
			t.Fatalf("seed log: %v", err)
		}
	}

	var stats []types.DeviceAccessStats
	resp := getJSON(t, f.ts.URL+"/api/access-stats", &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(stats) != 1 || stats[0].Total != 3 || stats[0].Authorized != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSystemHealth(t *testing.T) {
	f := newTestServer(t)

	_, err := f.registry.Register(context.Background(), "gate-001", "Main Gate", apiDeviceConn{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	var health types.SystemHealth
	resp := getJSON(t, f.ts.URL+"/api/system/health", &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if health.Status != "operational" {
		t.Errorf("expected operational status, got %q", health.Status)
	}
	if health.ConnectedDevices != 1 {
		t.Errorf("expected 1 connected device, got %d", health.ConnectedDevices)
	}
	if health.Subscribers != 0 {
		t.Errorf("expected 0 subscribers, got %d", health.Subscribers)
	}
}
