package store

import (
	"context"
	"time"

	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

// AccessLogRecord captures a single access attempt for the audit trail.
// Organization, department and holder name are denormalized at write time
// so the log stays meaningful even if the credential is later edited.
type AccessLogRecord struct {
	ID                 int64     `json:"id,omitempty"`
	CardID             string    `json:"cardId"`
	DeviceID           string    `json:"deviceId"`
	Location           string    `json:"location"`
	OrgName            string    `json:"orgName,omitempty"`
	DeptName           string    `json:"deptName,omitempty"`
	HolderName         string    `json:"holderName"`
	OccurredAt         time.Time `json:"occurredAt"`
	Authorized         bool      `json:"authorized"`
	VerificationMethod string    `json:"verificationMethod"`
	Accuracy           float64   `json:"accuracy"`
	RemoteAddr         string    `json:"remoteAddr,omitempty"`
}

// AccessLogStore persists access attempts as an append-only audit log.
type AccessLogStore interface {
	Insert(ctx context.Context, rec AccessLogRecord) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]AccessLogRecord, error)

	// StatsByDevice aggregates totals per device, busiest first.
	StatsByDevice(ctx context.Context) ([]types.DeviceAccessStats, error)
}

// HeartbeatStore keeps the append-only heartbeat trail.
type HeartbeatStore interface {
	Append(ctx context.Context, deviceID string, receivedAt time.Time) error

	// PruneOlderThan deletes rows received before cutoff and returns the
	// number deleted.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
