package memory

import (
	"context"
	"sync"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

type CardStore struct {
	mu    sync.RWMutex
	cards map[string]store.CardRecord
}

func NewCardStore() *CardStore {
	return &CardStore{cards: make(map[string]store.CardRecord)}
}

// Put inserts or replaces a card. Test seeding helper.
func (s *CardStore) Put(rec store.CardRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[rec.CardID] = rec
}

func (s *CardStore) Get(_ context.Context, cardID string) (store.CardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cards[cardID]
	if !ok {
		return store.CardRecord{}, store.ErrCardNotFound
	}
	return rec, nil
}

func (s *CardStore) Counts(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, rec := range s.cards {
		if rec.Active {
			active++
		}
	}
	return len(s.cards), active, nil
}

type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]store.TemplateRecord
}

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[string]store.TemplateRecord)}
}

// Put inserts or replaces a template. Test seeding helper.
func (s *TemplateStore) Put(rec store.TemplateRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[rec.CardID] = rec
}

func (s *TemplateStore) Get(_ context.Context, cardID string) (store.TemplateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.templates[cardID]
	if !ok {
		return store.TemplateRecord{}, store.ErrTemplateNotFound
	}
	return rec, nil
}
