package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts a starter organization, department, device and one
// enrolled credential so a dev gateway has something to authorize against.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO organizations(org_id, name, created_at_ms)
VALUES ('org_campus', 'Dev Campus', ?);`, nowMs); err != nil {
		return fmt.Errorf("seed organization: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO departments(dept_id, org_id, name, created_at_ms)
VALUES ('dept_cs', 'org_campus', 'Computer Science', ?);`, nowMs); err != nil {
		return fmt.Errorf("seed department: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO devices(device_id, location, active, registration_mode, created_at_ms, updated_at_ms)
VALUES ('D1', 'Main Gate', 0, 0, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET
  location = excluded.location,
  updated_at_ms = excluded.updated_at_ms;
`, nowMs, nowMs); err != nil {
		return fmt.Errorf("seed device D1: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO biometric_templates(card_id, fingerprint_id, template_data, created_at_ms, updated_at_ms)
VALUES ('C1', 1, X'00', ?, ?);`, nowMs, nowMs); err != nil {
		return fmt.Errorf("seed template C1: %w", err)
	}

	validFrom := now.AddDate(0, -1, 0).UnixMilli()
	validUntil := now.AddDate(1, 0, 0).UnixMilli()
	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO cards(
  card_id, holder_name, org_id, dept_id, card_type,
  valid_from_ms, valid_until_ms, active, created_at_ms, updated_at_ms
) VALUES ('C1', 'Dev Student', 'org_campus', 'dept_cs', 'student', ?, ?, 1, ?, ?);
`, validFrom, validUntil, nowMs, nowMs); err != nil {
		return fmt.Errorf("seed card C1: %w", err)
	}

	return nil
}
