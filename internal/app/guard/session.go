package guard

import (
	"sync"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// Status is a point-in-time view of the guard for the status endpoint.
type Status struct {
	Mode             domain.GuardMode
	EncounterID      domain.EncounterID
	Level            domain.EscalationLevel
	CooperationScore int
	ClaimedIdentity  string
}

// Session publishes the guard's externally visible state. The engine's
// consumer loop owns the live state and pushes an immutable snapshot here
// after every event, so HTTP readers never touch state mid-mutation.
type Session struct {
	mu        sync.RWMutex
	status    Status
	encounter *domain.Encounter // deep copy of the open encounter, or nil
}

func NewSession() *Session {
	return &Session{status: Status{Mode: domain.ModeIdle}}
}

func (s *Session) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// EncounterSnapshot returns a copy of the open encounter if it matches id.
func (s *Session) EncounterSnapshot(id domain.EncounterID) (*domain.Encounter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.encounter == nil || s.encounter.ID != id {
		return nil, false
	}
	snapshot := *s.encounter
	snapshot.Transcript = append([]domain.TranscriptTurn(nil), s.encounter.Transcript...)
	return &snapshot, true
}

// publish replaces the snapshot. Called only by the engine's consumer loop.
func (s *Session) publish(mode domain.GuardMode, enc *domain.Encounter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = Status{Mode: mode}
	if enc != nil {
		s.status.EncounterID = enc.ID
		s.status.Level = enc.CurrentLevel
		s.status.CooperationScore = enc.CooperationScore
		s.status.ClaimedIdentity = enc.ClaimedIdentity

		snapshot := *enc
		snapshot.Transcript = append([]domain.TranscriptTurn(nil), enc.Transcript...)
		s.encounter = &snapshot
	} else {
		s.encounter = nil
	}
}
