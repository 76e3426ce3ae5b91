package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// Store implements domain.RosterStore, domain.EncounterArchive and
// domain.EventLog on Firestore.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given project
// (GUARD_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) identitiesCol() *firestore.CollectionRef {
	return s.client.Collection("identities")
}

func (s *Store) encountersCol() *firestore.CollectionRef {
	return s.client.Collection("encounters")
}

func (s *Store) eventsCol() *firestore.CollectionRef {
	return s.client.Collection("guard_events")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

// Firestore rejects arrays of arrays, so each embedding vector is wrapped in
// its own document value.
type embeddingDoc struct {
	V []float64 `firestore:"v"`
}

type identityDoc struct {
	Name       string         `firestore:"name"`
	Embeddings []embeddingDoc `firestore:"embeddings"`
	EnrolledAt time.Time      `firestore:"enrolled_at"`
}

type transcriptTurnDoc struct {
	Speaker   string    `firestore:"speaker"`
	Text      string    `firestore:"text"`
	Timestamp time.Time `firestore:"timestamp"`
}

type encounterDoc struct {
	StartTime        time.Time           `firestore:"start_time"`
	CurrentLevel     int                 `firestore:"current_level"`
	LevelEnteredAt   time.Time           `firestore:"level_entered_at"`
	ClaimedIdentity  string              `firestore:"claimed_identity"`
	VisionIdentity   string              `firestore:"vision_identity"`
	CooperationScore int                 `firestore:"cooperation_score"`
	Transcript       []transcriptTurnDoc `firestore:"transcript"`
	Resolution       string              `firestore:"resolution"`
	ResolvedAt       time.Time           `firestore:"resolved_at"`
	LastSeen         time.Time           `firestore:"last_seen"`
}

type guardEventDoc struct {
	Timestamp   time.Time `firestore:"timestamp"`
	EncounterID string    `firestore:"encounter_id"`
	Level       int       `firestore:"level"`
	Type        string    `firestore:"event_type"`
	Detail      string    `firestore:"detail"`
}

// ─────────────────────────────────────────
// RosterStore implementation
// ─────────────────────────────────────────

func (s *Store) ListIdentities(ctx context.Context) ([]*domain.TrustedIdentity, error) {
	q := s.identitiesCol().OrderBy("enrolled_at", firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.TrustedIdentity
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListIdentities: %w", err)
		}

		var doc identityDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode identityDoc: %w", err)
		}

		embeddings := make([][]float64, 0, len(doc.Embeddings))
		for _, e := range doc.Embeddings {
			embeddings = append(embeddings, e.V)
		}

		out = append(out, &domain.TrustedIdentity{
			Name:       doc.Name,
			Embeddings: embeddings,
			EnrolledAt: doc.EnrolledAt,
		})
	}
	return out, nil
}

func (s *Store) CommitIdentity(ctx context.Context, identity *domain.TrustedIdentity) error {
	embeddings := make([]embeddingDoc, 0, len(identity.Embeddings))
	for _, v := range identity.Embeddings {
		embeddings = append(embeddings, embeddingDoc{V: v})
	}

	doc := identityDoc{
		Name:       identity.Name,
		Embeddings: embeddings,
		EnrolledAt: identity.EnrolledAt,
	}

	// Keyed by name: re-enrolling replaces the whole document in one write.
	_, err := s.identitiesCol().Doc(identity.Name).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore CommitIdentity: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// EncounterArchive implementation
// ─────────────────────────────────────────

func (s *Store) Archive(ctx context.Context, enc *domain.Encounter) error {
	transcript := make([]transcriptTurnDoc, 0, len(enc.Transcript))
	for _, turn := range enc.Transcript {
		transcript = append(transcript, transcriptTurnDoc{
			Speaker:   string(turn.Speaker),
			Text:      turn.Text,
			Timestamp: turn.Timestamp,
		})
	}

	doc := encounterDoc{
		StartTime:        enc.StartTime,
		CurrentLevel:     int(enc.CurrentLevel),
		LevelEnteredAt:   enc.LevelEnteredAt,
		ClaimedIdentity:  enc.ClaimedIdentity,
		VisionIdentity:   enc.VisionIdentity,
		CooperationScore: enc.CooperationScore,
		Transcript:       transcript,
		Resolution:       string(enc.Resolution),
		ResolvedAt:       enc.ResolvedAt,
		LastSeen:         enc.LastSeen,
	}

	_, err := s.encountersCol().Doc(string(enc.ID)).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore Archive: %w", err)
	}
	return nil
}

func (s *Store) GetEncounter(ctx context.Context, id domain.EncounterID) (*domain.Encounter, error) {
	snap, err := s.encountersCol().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrEncounterNotFound
		}
		return nil, fmt.Errorf("firestore GetEncounter: %w", err)
	}

	var doc encounterDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetEncounter decode: %w", err)
	}

	transcript := make([]domain.TranscriptTurn, 0, len(doc.Transcript))
	for _, turn := range doc.Transcript {
		transcript = append(transcript, domain.TranscriptTurn{
			Speaker:   domain.Role(turn.Speaker),
			Text:      turn.Text,
			Timestamp: turn.Timestamp,
		})
	}

	return &domain.Encounter{
		ID:               id,
		StartTime:        doc.StartTime,
		CurrentLevel:     domain.EscalationLevel(doc.CurrentLevel),
		LevelEnteredAt:   doc.LevelEnteredAt,
		ClaimedIdentity:  doc.ClaimedIdentity,
		VisionIdentity:   doc.VisionIdentity,
		CooperationScore: doc.CooperationScore,
		Transcript:       transcript,
		Resolution:       domain.Resolution(doc.Resolution),
		ResolvedAt:       doc.ResolvedAt,
		LastSeen:         doc.LastSeen,
	}, nil
}

// ─────────────────────────────────────────
// EventLog implementation
// ─────────────────────────────────────────

func (s *Store) Append(ctx context.Context, ev domain.GuardEvent) error {
	doc := guardEventDoc{
		Timestamp:   ev.Timestamp,
		EncounterID: string(ev.EncounterID),
		Level:       int(ev.Level),
		Type:        ev.Type,
		Detail:      ev.Detail,
	}

	_, _, err := s.eventsCol().Add(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore Append: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]domain.GuardEvent, error) {
	q := s.eventsCol().OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.GuardEvent
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore Recent: %w", err)
		}

		var doc guardEventDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode guardEventDoc: %w", err)
		}

		out = append(out, domain.GuardEvent{
			Timestamp:   doc.Timestamp,
			EncounterID: domain.EncounterID(doc.EncounterID),
			Level:       domain.EscalationLevel(doc.Level),
			Type:        doc.Type,
			Detail:      doc.Detail,
		})
	}

	// Query is newest-first; callers expect oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
