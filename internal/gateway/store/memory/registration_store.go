package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

// RegistrationStore implements the two-phase enrollment records against
// the in-memory card and template stores. A single mutex stands in for the
// production store's write transaction.
type RegistrationStore struct {
	mu            sync.Mutex
	registrations map[string]store.RegistrationRecord
	cards         *CardStore
	templates     *TemplateStore
	nextFinger    int64
}

func NewRegistrationStore(cards *CardStore, templates *TemplateStore) *RegistrationStore {
	return &RegistrationStore{
		registrations: make(map[string]store.RegistrationRecord),
		cards:         cards,
		templates:     templates,
	}
}

func (s *RegistrationStore) Intake(_ context.Context, in store.IntakeRecord) (store.RegistrationRecord, error) {
	cardID := strings.TrimSpace(in.CardID)
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.registrations {
		if reg.CardID == cardID && reg.Status == store.StatusPending {
			return store.RegistrationRecord{}, store.ErrDuplicatePending
		}
	}

	s.templates.Put(store.TemplateRecord{
		CardID:        cardID,
		FingerprintID: in.FingerprintID,
		TemplateData:  in.TemplateData,
		CreatedAt:     in.OccurredAt,
		UpdatedAt:     in.OccurredAt,
	})

	reg := store.RegistrationRecord{
		RegID:     uuid.NewString(),
		CardID:    cardID,
		DeviceID:  in.DeviceID,
		Status:    store.StatusPending,
		CreatedAt: in.OccurredAt,
	}
	s.registrations[reg.RegID] = reg
	return reg, nil
}

func (s *RegistrationStore) Approve(ctx context.Context, regID string, card store.NewCardRecord) (store.ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[regID]
	if !ok {
		return store.ApprovalRecord{}, store.ErrRegistrationNotFound
	}
	if reg.Status != store.StatusPending {
		return store.ApprovalRecord{}, store.ErrRegistrationNotPending
	}

	tpl, err := s.templates.Get(ctx, reg.CardID)
	if err != nil {
		return store.ApprovalRecord{}, err
	}

	if _, err := s.cards.Get(ctx, reg.CardID); err == nil {
		return store.ApprovalRecord{}, store.ErrCardExists
	}

	now := time.Now().UTC()
	cardRec := store.CardRecord{
		CardID:     reg.CardID,
		HolderName: card.HolderName,
		OrgID:      card.OrgID,
		DeptID:     card.DeptID,
		Type:       card.Type,
		ValidFrom:  card.ValidFrom,
		ValidUntil: card.ValidUntil,
		Active:     true,
	}
	s.cards.Put(cardRec)

	reg.Status = store.StatusApproved
	reg.Processed = true
	reg.ProcessedAt = &now
	s.registrations[regID] = reg

	return store.ApprovalRecord{Registration: reg, Card: cardRec, Template: tpl}, nil
}

func (s *RegistrationStore) Reject(_ context.Context, regID string) (store.RegistrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[regID]
	if !ok {
		return store.RegistrationRecord{}, store.ErrRegistrationNotFound
	}
	if reg.Status != store.StatusPending {
		return store.RegistrationRecord{}, store.ErrRegistrationNotPending
	}

	now := time.Now().UTC()
	reg.Status = store.StatusRejected
	reg.Processed = true
	reg.ProcessedAt = &now
	s.registrations[regID] = reg
	return reg, nil
}

func (s *RegistrationStore) ListPending(_ context.Context) ([]store.RegistrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.RegistrationRecord
	for _, reg := range s.registrations {
		if reg.Status == store.StatusPending {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (s *RegistrationStore) CountPending(_ context.Context) (int, error) {
	regs, _ := s.ListPending(context.Background())
	return len(regs), nil
}

func (s *RegistrationStore) NextFingerprintID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFinger++
	return s.nextFinger, nil
}

// SetFingerprintCounter seeds the allocator. Test helper.
func (s *RegistrationStore) SetFingerprintCounter(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFinger = v
}
