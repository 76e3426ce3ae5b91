package domain

import "time"

// TranscriptTurn is one spoken exchange inside an encounter.
type TranscriptTurn struct {
	Speaker   Role
	Text      string
	Timestamp time.Time
}

// Encounter is the unit of session state for one continuous unrecognized
// presence, from first detection to resolution. It is created by the engine
// when an unknown face persists past the debounce window, mutated only by the
// engine's event loop, and archived on resolution.
type Encounter struct {
	ID             EncounterID
	StartTime      time.Time
	CurrentLevel   EscalationLevel
	LevelEnteredAt time.Time

	// ClaimedIdentity is the name the visitor stated, if any.
	// VisionIdentity is the name the resolver matched, if any.
	ClaimedIdentity string
	VisionIdentity  string

	CooperationScore int
	Transcript       []TranscriptTurn

	Resolution Resolution
	ResolvedAt time.Time

	// LastSeen is the timestamp of the most recent face observation folded
	// into this encounter.
	LastSeen time.Time
}

// AppendTurn records a spoken turn on the full transcript.
func (e *Encounter) AppendTurn(speaker Role, text string, at time.Time) {
	e.Transcript = append(e.Transcript, TranscriptTurn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: at,
	})
}

// Open reports whether the encounter has not yet reached a terminal state.
func (e *Encounter) Open() bool {
	return e.Resolution == ""
}
