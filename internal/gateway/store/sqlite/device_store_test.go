package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	sqlitestore "github.com/campusgate/gatekeeper/internal/gateway/store/sqlite"
)

func TestDeviceStore_Upsert_CreatesAndReactivates(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDeviceStore(conn, w)
	ctx := context.Background()

	seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec, err := ds.Upsert(ctx, "gate-001", "Main Gate", seen)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !rec.Active {
		t.Error("expected new device to be active")
	}
	if !rec.LastSeen.Equal(seen) {
		t.Errorf("expected last_seen %v, got %v", seen, rec.LastSeen)
	}

	// Deactivate, then re-announce with a new location.
	if err := ds.SetActive(ctx, "gate-001", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	rec, err = ds.Upsert(ctx, "gate-001", "North Gate", seen.Add(time.Hour))
	if err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}
	if !rec.Active {
		t.Error("expected re-announced device to be active again")
	}
	if rec.Location != "North Gate" {
		t.Errorf("expected updated location, got %q", rec.Location)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 device row after upserts, got %d", count)
	}
}

func TestDeviceStore_Touch_UpdatesLastSeenOnly(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDeviceStore(conn, w)
	ctx := context.Background()

	seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := ds.Upsert(ctx, "gate-001", "Main Gate", seen); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	later := seen.Add(30 * time.Second)
	if err := ds.Touch(ctx, "gate-001", later); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	rec, err := ds.Get(ctx, "gate-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.LastSeen.Equal(later) {
		t.Errorf("expected last_seen %v, got %v", later, rec.LastSeen)
	}
	if rec.Location != "Main Gate" {
		t.Errorf("Touch must not change location, got %q", rec.Location)
	}
}

func TestDeviceStore_SetRegistrationMode_UnknownDevice(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDeviceStore(conn, w)

	_, err := ds.SetRegistrationMode(context.Background(), "ghost", true)
	if !errors.Is(err, store.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestDeviceStore_SetRegistrationMode_Persists(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDeviceStore(conn, w)
	ctx := context.Background()

	if _, err := ds.Upsert(ctx, "gate-001", "Main Gate", time.Now().UTC()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec, err := ds.SetRegistrationMode(ctx, "gate-001", true)
	if err != nil {
		t.Fatalf("SetRegistrationMode: %v", err)
	}
	if !rec.RegistrationMode {
		t.Error("expected registration mode enabled")
	}

	rec, err = ds.SetRegistrationMode(ctx, "gate-001", false)
	if err != nil {
		t.Fatalf("SetRegistrationMode off: %v", err)
	}
	if rec.RegistrationMode {
		t.Error("expected registration mode disabled")
	}
}

func TestDeviceStore_Get_Unknown(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDeviceStore(conn, w)

	_, err := ds.Get(context.Background(), "ghost")
	if !errors.Is(err, store.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestDeviceStore_DeactivateAllAndCounts(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDeviceStore(conn, w)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"gate-001", "gate-002", "gate-003"} {
		if _, err := ds.Upsert(ctx, id, "somewhere", now); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	if err := ds.DeactivateAll(ctx, []string{"gate-001", "gate-002"}); err != nil {
		t.Fatalf("DeactivateAll: %v", err)
	}

	total, active, err := ds.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if total != 3 || active != 1 {
		t.Errorf("expected total=3 active=1, got total=%d active=%d", total, active)
	}
}
