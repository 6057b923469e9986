package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

var ErrInvalidCardID = errors.New("card_id is required")

// AccessRequest is one access attempt as reported by a device.
type AccessRequest struct {
	CardID     string
	DeviceID   string
	Match      bool    // device-local biometric match result
	Accuracy   float64 // device-reported confidence
	Timestamp  int64   // device clock, seconds since epoch; 0 means "use server time"
	RemoteAddr string
}

type AccessService struct {
	cards     store.CardStore
	templates store.TemplateStore
	devices   store.DeviceStore
	logs      store.AccessLogStore
	events    Broadcaster
	logger    *zap.Logger
}

func NewAccessService(
	cards store.CardStore,
	templates store.TemplateStore,
	devices store.DeviceStore,
	logs store.AccessLogStore,
	events Broadcaster,
	logger *zap.Logger,
) *AccessService {
	return &AccessService{
		cards:     cards,
		templates: templates,
		devices:   devices,
		logs:      logs,
		events:    events,
		logger:    logger,
	}
}

// Decide evaluates an access attempt and returns the protocol token. The
// audit write is on the critical path: if it fails the computed decision
// is discarded and an error comes back, because an unaudited OK must never
// reach a device.
func (s *AccessService) Decide(ctx context.Context, req AccessRequest) (types.Token, error) {
	cardID := strings.TrimSpace(req.CardID)
	deviceID := strings.TrimSpace(req.DeviceID)
	if cardID == "" {
		return "", ErrInvalidCardID
	}
	if deviceID == "" {
		return "", ErrInvalidDeviceID
	}

	now := time.Now().UTC()
	occurredAt := now
	if req.Timestamp > 0 {
		occurredAt = time.Unix(req.Timestamp, 0).UTC()
	}

	hasTemplate := true
	if _, err := s.templates.Get(ctx, cardID); err != nil {
		if !errors.Is(err, store.ErrTemplateNotFound) {
			return "", fmt.Errorf("template lookup: %w", err)
		}
		hasTemplate = false
	}

	var card *store.CardRecord
	if rec, err := s.cards.Get(ctx, cardID); err == nil {
		card = &rec
	} else if !errors.Is(err, store.ErrCardNotFound) {
		return "", fmt.Errorf("card lookup: %w", err)
	}

	// A missing device record is not a denial reason; the location just
	// degrades to "Unknown".
	location := "Unknown"
	if dev, err := s.devices.Get(ctx, deviceID); err == nil {
		location = dev.Location
	} else if !errors.Is(err, store.ErrDeviceNotFound) {
		return "", fmt.Errorf("device lookup: %w", err)
	}

	authorized := req.Match && card != nil && card.Valid(now) && hasTemplate

	rec := store.AccessLogRecord{
		CardID:             cardID,
		DeviceID:           deviceID,
		Location:           location,
		HolderName:         "Unknown",
		OccurredAt:         occurredAt,
		Authorized:         authorized,
		VerificationMethod: "card_and_fingerprint",
		Accuracy:           req.Accuracy,
		RemoteAddr:         req.RemoteAddr,
	}
	if card != nil {
		rec.HolderName = card.HolderName
		rec.OrgName = card.OrgName
		rec.DeptName = card.DeptName
	}

	if err := s.logs.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("access log write: %w", err)
	}

	department := "Unknown"
	if card != nil && card.DeptName != "" {
		department = card.DeptName
	}
	s.events.Publish(types.EventAccessAttempt, types.AccessAttemptEvent{
		CardID:     cardID,
		DeviceID:   deviceID,
		Location:   location,
		Department: department,
		HolderName: rec.HolderName,
		Timestamp:  occurredAt.UnixMilli(),
		Authorized: authorized,
		Accuracy:   req.Accuracy,
	})

	s.logger.Info("access decision",
		zap.String("card_id", cardID),
		zap.String("device_id", deviceID),
		zap.Bool("authorized", authorized),
	)

	switch {
	case authorized:
		return types.TokenOK, nil
	case card != nil && card.Expired(now):
		return types.TokenExpired, nil
	default:
		return types.TokenUnauthorized, nil
	}
}
