package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

var (
	ErrInvalidHolderName = errors.New("holder name is required")
	ErrInvalidCardType   = errors.New("invalid card type")
)

var cardTypes = map[string]struct{}{
	"student": {},
	"faculty": {},
	"staff":   {},
	"visitor": {},
}

// IntakeRequest is a device-originated REGISTRATION message.
type IntakeRequest struct {
	CardID        string
	DeviceID      string
	TemplateData  string // opaque to the gateway
	FingerprintID int64  // sensor slot, 0 when the device did not report one
	Timestamp     int64  // device clock, seconds since epoch
}

// ApproveRequest carries the operator-supplied credential attributes.
type ApproveRequest struct {
	HolderName string
	Type       string
	OrgID      string
	DeptID     string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// EnrollmentService runs the two-phase biometric registration workflow:
// device-initiated intake and operator-initiated approval/rejection.
type EnrollmentService struct {
	registrations store.RegistrationStore
	events        Broadcaster
	logger        *zap.Logger
}

func NewEnrollmentService(registrations store.RegistrationStore, events Broadcaster, logger *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		registrations: registrations,
		events:        events,
		logger:        logger,
	}
}

// Intake persists the template and a pending registration. A second intake
// for the same candidate while one is pending surfaces as
// store.ErrDuplicatePending (DUPLICATE on the wire), not a new row.
func (s *EnrollmentService) Intake(ctx context.Context, req IntakeRequest) (store.RegistrationRecord, error) {
	cardID := strings.TrimSpace(req.CardID)
	if cardID == "" {
		return store.RegistrationRecord{}, ErrInvalidCardID
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return store.RegistrationRecord{}, ErrInvalidDeviceID
	}

	occurredAt := time.Now().UTC()
	if req.Timestamp > 0 {
		occurredAt = time.Unix(req.Timestamp, 0).UTC()
	}

	reg, err := s.registrations.Intake(ctx, store.IntakeRecord{
		CardID:        cardID,
		DeviceID:      req.DeviceID,
		TemplateData:  []byte(req.TemplateData),
		FingerprintID: req.FingerprintID,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		return store.RegistrationRecord{}, err
	}

	s.logger.Info("registration intake",
		zap.String("card_id", cardID),
		zap.String("device_id", req.DeviceID),
		zap.String("reg_id", reg.RegID),
	)
	s.events.Publish(types.EventNewRegistration, reg)
	return reg, nil
}

// Approve turns a pending registration into a usable credential in one
// atomic transaction. Concurrent approvals of the same registration lose
// cleanly with store.ErrRegistrationNotPending.
func (s *EnrollmentService) Approve(ctx context.Context, regID string, req ApproveRequest) (store.ApprovalRecord, error) {
	if strings.TrimSpace(req.HolderName) == "" {
		return store.ApprovalRecord{}, ErrInvalidHolderName
	}
	if _, ok := cardTypes[req.Type]; !ok {
		return store.ApprovalRecord{}, ErrInvalidCardType
	}

	now := time.Now().UTC()
	if req.ValidFrom.IsZero() {
		req.ValidFrom = now
	}
	if req.ValidUntil.IsZero() {
		req.ValidUntil = now.AddDate(1, 0, 0)
	}

	approval, err := s.registrations.Approve(ctx, regID, store.NewCardRecord{
		HolderName: strings.TrimSpace(req.HolderName),
		Type:       req.Type,
		OrgID:      req.OrgID,
		DeptID:     req.DeptID,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
	})
	if err != nil {
		return store.ApprovalRecord{}, err
	}

	s.logger.Info("registration approved",
		zap.String("reg_id", regID),
		zap.String("card_id", approval.Card.CardID),
	)
	s.events.Publish(types.EventRegistrationApproved, approval)
	return approval, nil
}

// Reject is a single-record status transition; it creates no dependent
// records and needs no multi-record transaction.
func (s *EnrollmentService) Reject(ctx context.Context, regID string) (store.RegistrationRecord, error) {
	reg, err := s.registrations.Reject(ctx, regID)
	if err != nil {
		return store.RegistrationRecord{}, err
	}

	s.logger.Info("registration rejected", zap.String("reg_id", regID))
	s.events.Publish(types.EventRegistrationRejected, reg)
	return reg, nil
}

// NextFingerprintID allocates the next fingerprint slot atomically.
func (s *EnrollmentService) NextFingerprintID(ctx context.Context) (int64, error) {
	return s.registrations.NextFingerprintID(ctx)
}
