package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

// CardStore is read-only; cards are written by the approval transaction
// in RegistrationStore.
type CardStore struct {
	db *sql.DB
}

func NewCardStore(db *sql.DB) *CardStore {
	return &CardStore{db: db}
}

func (s *CardStore) Get(ctx context.Context, cardID string) (store.CardRecord, error) {
	var rec store.CardRecord
	var orgID, deptID, orgName, deptName sql.NullString
	var validFrom, validUntil int64
	var active int

	err := s.db.QueryRowContext(ctx, `
SELECT c.card_id, c.holder_name, c.org_id, c.dept_id, o.name, d.name,
       c.card_type, c.valid_from_ms, c.valid_until_ms, c.active
FROM cards c
LEFT JOIN organizations o ON o.org_id = c.org_id
LEFT JOIN departments d ON d.dept_id = c.dept_id
WHERE c.card_id = ?;
`, cardID).Scan(
		&rec.CardID, &rec.HolderName, &orgID, &deptID, &orgName, &deptName,
		&rec.Type, &validFrom, &validUntil, &active,
	)

	if err == sql.ErrNoRows {
		return store.CardRecord{}, store.ErrCardNotFound
	}
	if err != nil {
		return store.CardRecord{}, fmt.Errorf("Get card %s: %w", cardID, err)
	}

	rec.OrgID = orgID.String
	rec.DeptID = deptID.String
	rec.OrgName = orgName.String
	rec.DeptName = deptName.String
	rec.ValidFrom = msToTime(validFrom)
	rec.ValidUntil = msToTime(validUntil)
	rec.Active = active == 1
	return rec, nil
}

func (s *CardStore) Counts(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(active), 0) FROM cards;
`).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("Counts cards: %w", err)
	}
	return total, active, nil
}

type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) Get(ctx context.Context, cardID string) (store.TemplateRecord, error) {
	var rec store.TemplateRecord
	var fingerprintID sql.NullInt64
	var createdMs, updatedMs int64

	err := s.db.QueryRowContext(ctx, `
SELECT card_id, fingerprint_id, template_data, created_at_ms, updated_at_ms
FROM biometric_templates
WHERE card_id = ?;
`, cardID).Scan(&rec.CardID, &fingerprintID, &rec.TemplateData, &createdMs, &updatedMs)

	if err == sql.ErrNoRows {
		return store.TemplateRecord{}, store.ErrTemplateNotFound
	}
	if err != nil {
		return store.TemplateRecord{}, fmt.Errorf("Get template %s: %w", cardID, err)
	}

	rec.FingerprintID = fingerprintID.Int64
	rec.CreatedAt = msToTime(createdMs)
	rec.UpdatedAt = msToTime(updatedMs)
	return rec, nil
}
