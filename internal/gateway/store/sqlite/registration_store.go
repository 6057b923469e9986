package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/campusgate/gatekeeper/internal/db"
	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

type RegistrationStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRegistrationStore(db *sql.DB, writer *dbpkg.Worker) *RegistrationStore {
	return &RegistrationStore{db: db, writer: writer}
}

func (s *RegistrationStore) Intake(ctx context.Context, in store.IntakeRecord) (store.RegistrationRecord, error) {
	cardID := strings.TrimSpace(in.CardID)
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}
	ms := in.OccurredAt.UTC().UnixMilli()
	regID := uuid.NewString()

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Duplicate check inside the transaction: two concurrent intakes
		// for one candidate cannot both pass it.
		var one int
		err := tx.QueryRowContext(ctx, `
SELECT 1 FROM pending_registrations WHERE card_id = ? AND status = 'pending';
`, cardID).Scan(&one)
		if err == nil {
			return store.ErrDuplicatePending
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("Intake duplicate check %s: %w", cardID, err)
		}

		// NULL keeps the unique fingerprint index out of play for devices
		// that never reported a slot.
		var fingerID any
		if in.FingerprintID > 0 {
			fingerID = in.FingerprintID
		}

		// A rejected candidate may re-enroll; refresh its template in place.
		if _, err := tx.ExecContext(ctx, `
INSERT INTO biometric_templates(card_id, fingerprint_id, template_data, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(card_id) DO UPDATE SET
  fingerprint_id = excluded.fingerprint_id,
  template_data  = excluded.template_data,
  updated_at_ms  = excluded.updated_at_ms;
`, cardID, fingerID, in.TemplateData, ms, ms); err != nil {
			return fmt.Errorf("Intake template %s: %w", cardID, err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO pending_registrations(reg_id, card_id, device_id, status, processed, created_at_ms)
VALUES (?, ?, ?, 'pending', 0, ?);
`, regID, cardID, in.DeviceID, ms); err != nil {
			return fmt.Errorf("Intake registration %s: %w", cardID, err)
		}

		return nil
	})
	if err != nil {
		return store.RegistrationRecord{}, err
	}

	return store.RegistrationRecord{
		RegID:     regID,
		CardID:    cardID,
		DeviceID:  in.DeviceID,
		Status:    store.StatusPending,
		CreatedAt: in.OccurredAt.UTC(),
	}, nil
}

func (s *RegistrationStore) Approve(ctx context.Context, regID string, card store.NewCardRecord) (store.ApprovalRecord, error) {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	var out store.ApprovalRecord
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Re-read the registration inside the transaction's isolation
		// context; an earlier read by the caller proves nothing.
		reg, err := scanRegistration(tx.QueryRowContext(ctx, `
SELECT reg_id, card_id, device_id, status, processed, created_at_ms, processed_at_ms
FROM pending_registrations
WHERE reg_id = ?;
`, regID))
		if err == sql.ErrNoRows {
			return store.ErrRegistrationNotFound
		}
		if err != nil {
			return fmt.Errorf("Approve load registration %s: %w", regID, err)
		}
		if reg.Status != store.StatusPending {
			return store.ErrRegistrationNotPending
		}

		var tpl store.TemplateRecord
		var fingerprintID sql.NullInt64
		var tplCreated, tplUpdated int64
		err = tx.QueryRowContext(ctx, `
SELECT card_id, fingerprint_id, template_data, created_at_ms, updated_at_ms
FROM biometric_templates
WHERE card_id = ?;
`, reg.CardID).Scan(&tpl.CardID, &fingerprintID, &tpl.TemplateData, &tplCreated, &tplUpdated)
		if err == sql.ErrNoRows {
			return store.ErrTemplateNotFound
		}
		if err != nil {
			return fmt.Errorf("Approve load template %s: %w", reg.CardID, err)
		}
		tpl.FingerprintID = fingerprintID.Int64
		tpl.CreatedAt = msToTime(tplCreated)
		tpl.UpdatedAt = msToTime(tplUpdated)

		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE card_id = ?;`, reg.CardID).Scan(&one)
		if err == nil {
			return store.ErrCardExists
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("Approve card check %s: %w", reg.CardID, err)
		}

		var orgID, deptID any
		if card.OrgID != "" {
			orgID = card.OrgID
		}
		if card.DeptID != "" {
			deptID = card.DeptID
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO cards(
  card_id, holder_name, org_id, dept_id, card_type,
  valid_from_ms, valid_until_ms, active, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?);
`, reg.CardID, card.HolderName, orgID, deptID, card.Type,
			timeToMs(card.ValidFrom), timeToMs(card.ValidUntil), nowMs, nowMs); err != nil {
			return fmt.Errorf("Approve insert card %s: %w", reg.CardID, err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE pending_registrations
SET status = 'approved', processed = 1, processed_at_ms = ?
WHERE reg_id = ?;
`, nowMs, regID); err != nil {
			return fmt.Errorf("Approve update registration %s: %w", regID, err)
		}

		var orgName, deptName sql.NullString
		if card.OrgID != "" {
			_ = tx.QueryRowContext(ctx, `SELECT name FROM organizations WHERE org_id = ?;`, card.OrgID).Scan(&orgName)
		}
		if card.DeptID != "" {
			_ = tx.QueryRowContext(ctx, `SELECT name FROM departments WHERE dept_id = ?;`, card.DeptID).Scan(&deptName)
		}

		reg.Status = store.StatusApproved
		reg.Processed = true
		reg.ProcessedAt = &now

		out = store.ApprovalRecord{
			Registration: reg,
			Card: store.CardRecord{
				CardID:     reg.CardID,
				HolderName: card.HolderName,
				OrgID:      card.OrgID,
				DeptID:     card.DeptID,
				OrgName:    orgName.String,
				DeptName:   deptName.String,
				Type:       card.Type,
				ValidFrom:  card.ValidFrom.UTC(),
				ValidUntil: card.ValidUntil.UTC(),
				Active:     true,
			},
			Template: tpl,
		}
		return nil
	})
	if err != nil {
		return store.ApprovalRecord{}, err
	}
	return out, nil
}

func (s *RegistrationStore) Reject(ctx context.Context, regID string) (store.RegistrationRecord, error) {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	var out store.RegistrationRecord
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		reg, err := scanRegistration(tx.QueryRowContext(ctx, `
SELECT reg_id, card_id, device_id, status, processed, created_at_ms, processed_at_ms
FROM pending_registrations
WHERE reg_id = ?;
`, regID))
		if err == sql.ErrNoRows {
			return store.ErrRegistrationNotFound
		}
		if err != nil {
			return fmt.Errorf("Reject load registration %s: %w", regID, err)
		}
		if reg.Status != store.StatusPending {
			return store.ErrRegistrationNotPending
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE pending_registrations
SET status = 'rejected', processed = 1, processed_at_ms = ?
WHERE reg_id = ?;
`, nowMs, regID); err != nil {
			return fmt.Errorf("Reject update registration %s: %w", regID, err)
		}

		reg.Status = store.StatusRejected
		reg.Processed = true
		reg.ProcessedAt = &now
		out = reg
		return nil
	})
	if err != nil {
		return store.RegistrationRecord{}, err
	}
	return out, nil
}

func (s *RegistrationStore) ListPending(ctx context.Context) ([]store.RegistrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT reg_id, card_id, device_id, status, processed, created_at_ms, processed_at_ms
FROM pending_registrations
WHERE status = 'pending'
ORDER BY created_at_ms DESC;
`)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	defer rows.Close()

	var out []store.RegistrationRecord
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPending scan: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (s *RegistrationStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM pending_registrations WHERE status = 'pending';
`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountPending: %w", err)
	}
	return n, nil
}

func (s *RegistrationStore) NextFingerprintID(ctx context.Context) (int64, error) {
	var next int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
UPDATE counters SET value = value + 1 WHERE name = 'fingerprint_id' RETURNING value;
`).Scan(&next)
	})
	if err != nil {
		return 0, fmt.Errorf("NextFingerprintID: %w", err)
	}
	return next, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (store.RegistrationRecord, error) {
	var reg store.RegistrationRecord
	var processed int
	var createdMs int64
	var processedMs sql.NullInt64

	err := row.Scan(&reg.RegID, &reg.CardID, &reg.DeviceID, &reg.Status,
		&processed, &createdMs, &processedMs)
	if err != nil {
		return store.RegistrationRecord{}, err
	}

	reg.Processed = processed == 1
	reg.CreatedAt = msToTime(createdMs)
	if processedMs.Valid {
		t := msToTime(processedMs.Int64)
		reg.ProcessedAt = &t
	}
	return reg, nil
}
