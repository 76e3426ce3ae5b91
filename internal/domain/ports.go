package domain

import (
	"context"
	"errors"
)

// ErrEncounterNotFound is returned by EncounterArchive lookups for unknown IDs.
var ErrEncounterNotFound = errors.New("encounter not found")

// LLMClient defines how the core interacts with the generative collaborator.
type LLMClient interface {
	GenerateReply(ctx context.Context, prompt string, convCtx ConversationContext) (string, error)
}

// ConversationPurpose selects the persona the LLM adapter should adopt.
type ConversationPurpose string

const (
	PurposeInterrogation ConversationPurpose = "interrogation"
	PurposeTrustedChat   ConversationPurpose = "trusted_chat"
)

// ConversationContext gives the LLM minimal context about the exchange.
type ConversationContext struct {
	Purpose     ConversationPurpose
	EncounterID EncounterID
	Level       EscalationLevel
	History     []TranscriptTurn // last N turns, oldest first
}

// RosterStore reads and commits trusted identities. ListIdentities returns
// identities in enrollment order; CommitIdentity is atomic — a partially
// enrolled identity is never visible to readers.
type RosterStore interface {
	ListIdentities(ctx context.Context) ([]*TrustedIdentity, error)
	CommitIdentity(ctx context.Context, identity *TrustedIdentity) error
}

// EncounterArchive persists resolved encounters.
type EncounterArchive interface {
	Archive(ctx context.Context, enc *Encounter) error
	GetEncounter(ctx context.Context, id EncounterID) (*Encounter, error)
}

// EventLog is the append-only structured sink for guard events. The core
// writes every transition here and reads back only the short recent window
// used for conversational recall.
type EventLog interface {
	Append(ctx context.Context, ev GuardEvent) error
	Recent(ctx context.Context, limit int) ([]GuardEvent, error)
}

// ActionSink receives outbound actions. Implementations must not block the
// caller; the engine emits from its single consumer loop.
type ActionSink interface {
	Emit(action Action)
}
