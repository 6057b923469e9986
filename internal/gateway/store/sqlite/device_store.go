package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/campusgate/gatekeeper/internal/db"
	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

func (s *DeviceStore) Upsert(ctx context.Context, deviceID, location string, seen time.Time) (store.DeviceRecord, error) {
	deviceID = strings.TrimSpace(deviceID)
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	ms := seen.UTC().UnixMilli()

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO devices(device_id, location, active, last_seen_at_ms, created_at_ms, updated_at_ms)
VALUES (?, ?, 1, ?, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  location        = excluded.location,
  active          = 1,
  last_seen_at_ms = excluded.last_seen_at_ms,
  updated_at_ms   = excluded.updated_at_ms;
`, deviceID, location, ms, ms, ms); err != nil {
			return fmt.Errorf("Upsert device %s: %w", deviceID, err)
		}
		return nil
	})
	if err != nil {
		return store.DeviceRecord{}, err
	}

	return s.Get(ctx, deviceID)
}

func (s *DeviceStore) Touch(ctx context.Context, deviceID string, seen time.Time) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	if seen.IsZero() {
		seen = time.Now().UTC()
	}
	ms := seen.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE devices
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE device_id = ?;
`, ms, ms, deviceID); err != nil {
			return fmt.Errorf("Touch device %s: %w", deviceID, err)
		}
		return nil
	})
}

func (s *DeviceStore) SetActive(ctx context.Context, deviceID string, active bool) error {
	ms := time.Now().UTC().UnixMilli()
	flag := 0
	if active {
		flag = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE devices SET active = ?, updated_at_ms = ? WHERE device_id = ?;
`, flag, ms, deviceID); err != nil {
			return fmt.Errorf("SetActive device %s: %w", deviceID, err)
		}
		return nil
	})
}

func (s *DeviceStore) SetRegistrationMode(ctx context.Context, deviceID string, enabled bool) (store.DeviceRecord, error) {
	ms := time.Now().UTC().UnixMilli()
	flag := 0
	if enabled {
		flag = 1
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE devices SET registration_mode = ?, updated_at_ms = ? WHERE device_id = ?;
`, flag, ms, deviceID)
		if err != nil {
			return fmt.Errorf("SetRegistrationMode device %s: %w", deviceID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return store.ErrDeviceNotFound
		}
		return nil
	})
	if err != nil {
		return store.DeviceRecord{}, err
	}

	return s.Get(ctx, deviceID)
}

func (s *DeviceStore) Get(ctx context.Context, deviceID string) (store.DeviceRecord, error) {
	var rec store.DeviceRecord
	var active, regMode int
	var lastSeen sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
SELECT device_id, location, active, registration_mode, last_seen_at_ms
FROM devices
WHERE device_id = ?;
`, deviceID).Scan(&rec.DeviceID, &rec.Location, &active, &regMode, &lastSeen)

	if err == sql.ErrNoRows {
		return store.DeviceRecord{}, store.ErrDeviceNotFound
	}
	if err != nil {
		return store.DeviceRecord{}, fmt.Errorf("Get device %s: %w", deviceID, err)
	}

	rec.Active = active == 1
	rec.RegistrationMode = regMode == 1
	if lastSeen.Valid {
		rec.LastSeen = msToTime(lastSeen.Int64)
	}
	return rec, nil
}

func (s *DeviceStore) List(ctx context.Context) ([]store.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT device_id, location, active, registration_mode, last_seen_at_ms
FROM devices
ORDER BY location, device_id;
`)
	if err != nil {
		return nil, fmt.Errorf("List devices: %w", err)
	}
	defer rows.Close()

	var out []store.DeviceRecord
	for rows.Next() {
		var rec store.DeviceRecord
		var active, regMode int
		var lastSeen sql.NullInt64
		if err := rows.Scan(&rec.DeviceID, &rec.Location, &active, &regMode, &lastSeen); err != nil {
			return nil, fmt.Errorf("List devices scan: %w", err)
		}
		rec.Active = active == 1
		rec.RegistrationMode = regMode == 1
		if lastSeen.Valid {
			rec.LastSeen = msToTime(lastSeen.Int64)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DeviceStore) DeactivateAll(ctx context.Context, deviceIDs []string) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	ms := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, id := range deviceIDs {
			if _, err := tx.ExecContext(ctx, `
UPDATE devices SET active = 0, updated_at_ms = ? WHERE device_id = ?;
`, ms, id); err != nil {
				return fmt.Errorf("DeactivateAll device %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *DeviceStore) Counts(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(active), 0) FROM devices;
`).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("Counts devices: %w", err)
	}
	return total, active, nil
}
