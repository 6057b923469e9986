package store

import (
	"context"
	"time"
)

type CardRecord struct {
	CardID     string    `json:"cardId"`
	HolderName string    `json:"holderName"`
	OrgID      string    `json:"orgId,omitempty"`
	DeptID     string    `json:"deptId,omitempty"`
	OrgName    string    `json:"orgName,omitempty"`
	DeptName   string    `json:"deptName,omitempty"`
	Type       string    `json:"type"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
	Active     bool      `json:"active"`
}

// Valid reports whether the credential is usable at the given instant.
func (c CardRecord) Valid(now time.Time) bool {
	return c.Active && !now.Before(c.ValidFrom) && !now.After(c.ValidUntil)
}

// Expired reports whether the credential is active but outside its
// validity window — the EXPIRED rather than UNAUTHORIZED case.
func (c CardRecord) Expired(now time.Time) bool {
	return c.Active && (now.Before(c.ValidFrom) || now.After(c.ValidUntil))
}

type TemplateRecord struct {
	CardID        string    `json:"cardId"`
	FingerprintID int64     `json:"fingerprintId,omitempty"`
	TemplateData  []byte    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CardStore reads credentials. Creation happens through the enrollment
// approval transaction (RegistrationStore) or the external CRUD layer.
type CardStore interface {
	// Get returns the card with organization/department names resolved.
	// Returns ErrCardNotFound when no such card exists.
	Get(ctx context.Context, cardID string) (CardRecord, error)

	// Counts returns (total, active) for health reporting.
	Counts(ctx context.Context) (int, int, error)
}

// TemplateStore reads biometric templates; the payload is opaque to the
// gateway.
type TemplateStore interface {
	// Get returns ErrTemplateNotFound when the card has no template.
	Get(ctx context.Context, cardID string) (TemplateRecord, error)
}
