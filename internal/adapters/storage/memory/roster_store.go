package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// RosterStore is a simple in-memory implementation of domain.RosterStore.
// It is NOT persistent and is only suitable for development / local mode.
type RosterStore struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]*domain.TrustedIdentity
}

func NewRosterStore() *RosterStore {
	return &RosterStore{
		byName: make(map[string]*domain.TrustedIdentity),
	}
}

// ListIdentities returns identities in enrollment order.
func (s *RosterStore) ListIdentities(ctx context.Context) ([]*domain.TrustedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TrustedIdentity, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out, nil
}

// CommitIdentity replaces or appends one identity in a single locked write.
func (s *RosterStore) CommitIdentity(ctx context.Context, identity *domain.TrustedIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[identity.Name]; !exists {
		s.order = append(s.order, identity.Name)
	}
	s.byName[identity.Name] = identity
	return nil
}
