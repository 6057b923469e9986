package store

import (
	"context"
	"time"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type RegistrationRecord struct {
	RegID       string     `json:"regId"`
	CardID      string     `json:"cardId"`
	DeviceID    string     `json:"deviceId"`
	Status      string     `json:"status"`
	Processed   bool       `json:"processed"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// IntakeRecord is a device-originated enrollment request.
type IntakeRecord struct {
	CardID        string
	DeviceID      string
	TemplateData  []byte
	FingerprintID int64 // 0 means the device reported no sensor slot
	OccurredAt    time.Time
}

// NewCardRecord carries the operator-supplied credential attributes for an
// approval.
type NewCardRecord struct {
	HolderName string
	Type       string
	OrgID      string
	DeptID     string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// ApprovalRecord is everything an approval commit produced.
type ApprovalRecord struct {
	Registration RegistrationRecord
	Card         CardRecord
	Template     TemplateRecord
}

// RegistrationStore owns the two-phase enrollment records.
type RegistrationStore interface {
	// Intake persists the template and a pending registration in one
	// transaction. Returns ErrDuplicatePending if a pending registration
	// for the card already exists; the duplicate check runs inside the
	// transaction, so two concurrent intakes cannot both pass it.
	Intake(ctx context.Context, in IntakeRecord) (RegistrationRecord, error)

	// Approve re-reads the registration inside a single transaction,
	// aborts with ErrRegistrationNotFound / ErrRegistrationNotPending /
	// ErrTemplateNotFound / ErrCardExists as appropriate, then creates the
	// card and marks the registration approved+processed atomically.
	Approve(ctx context.Context, regID string, card NewCardRecord) (ApprovalRecord, error)

	// Reject is a single-record status transition to rejected+processed.
	Reject(ctx context.Context, regID string) (RegistrationRecord, error)

	ListPending(ctx context.Context) ([]RegistrationRecord, error)
	CountPending(ctx context.Context) (int, error)

	// NextFingerprintID atomically allocates the next fingerprint slot.
	NextFingerprintID(ctx context.Context) (int64, error)
}
