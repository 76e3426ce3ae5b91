package enroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/guard-agent/internal/domain"
	"github.com/PabloGalante/guard-agent/internal/observability"
)

var (
	ErrEmptyName     = errors.New("enrollment name is required")
	ErrNoEmbeddings  = errors.New("enrollment requires at least one embedding")
	ErrRaggedVectors = errors.New("enrollment embeddings must share one dimension")
)

// Service commits enrollments to the roster. The commit is a single atomic
// store write: a partially enrolled identity is never visible to the resolver.
type Service struct {
	roster domain.RosterStore
	now    func() time.Time
}

func NewService(roster domain.RosterStore) *Service {
	return &Service{roster: roster, now: time.Now}
}

// Commit validates and writes one identity. Re-enrolling an existing name
// replaces its embeddings wholesale.
func (s *Service) Commit(ctx context.Context, name string, embeddings [][]float64) (*domain.TrustedIdentity, error) {
	log := observability.LoggerFromContext(ctx).With("name", name)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(embeddings) == 0 {
		return nil, ErrNoEmbeddings
	}

	dim := len(embeddings[0])
	for _, e := range embeddings {
		if len(e) != dim || dim == 0 {
			return nil, ErrRaggedVectors
		}
	}

	identity := &domain.TrustedIdentity{
		Name:       name,
		Embeddings: embeddings,
		EnrolledAt: s.now(),
	}

	if err := s.roster.CommitIdentity(ctx, identity); err != nil {
		log.Error("enrollment commit failed", "error", err)
		return nil, fmt.Errorf("committing identity: %w", err)
	}

	log.Info("identity enrolled", "embeddings", len(embeddings))
	return identity, nil
}
