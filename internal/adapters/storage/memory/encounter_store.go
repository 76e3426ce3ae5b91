package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

type EncounterStore struct {
	mu         sync.RWMutex
	encounters map[domain.EncounterID]*domain.Encounter
}

func NewEncounterStore() *EncounterStore {
	return &EncounterStore{
		encounters: make(map[domain.EncounterID]*domain.Encounter),
	}
}

func (s *EncounterStore) Archive(ctx context.Context, enc *domain.Encounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *enc
	stored.Transcript = append([]domain.TranscriptTurn(nil), enc.Transcript...)
	s.encounters[enc.ID] = &stored
	return nil
}

func (s *EncounterStore) GetEncounter(ctx context.Context, id domain.EncounterID) (*domain.Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enc, ok := s.encounters[id]
	if !ok {
		return nil, domain.ErrEncounterNotFound
	}

	out := *enc
	out.Transcript = append([]domain.TranscriptTurn(nil), enc.Transcript...)
	return &out, nil
}
