package domain

import "time"

// EventType distinguishes the kinds of events the engine consumes.
type EventType int

const (
	// EventFaceObserved carries a fresh face embedding from the vision stream.
	EventFaceObserved EventType = iota + 1
	// EventFaceLost signals that no face has been seen for the grace period.
	EventFaceLost
	// EventSpeechHeard carries a transcript from the speech collaborator.
	EventSpeechHeard
	// EventSpeechFailed signals a failed transcription. It is not silence.
	EventSpeechFailed
	// EventCommand carries a recognized voice command.
	EventCommand
	// EventEnrollmentDone signals that an enrollment commit finished.
	EventEnrollmentDone
	// EventTick drives timer-based transitions.
	EventTick
)

// Event wraps everything the engine's single consumer loop can receive.
// Exactly one payload field is set, matching Type.
type Event struct {
	Type        EventType
	Observation *FaceObservation
	Transcript  *TranscriptEvent
	Command     VoiceCommand
	Enrolled    string
	Timestamp   time.Time
}

// TranscriptEvent is a speech collaborator push.
type TranscriptEvent struct {
	Text      string
	Timestamp time.Time
}

// ActionType enumerates the outbound actions the engine emits toward external
// collaborators (TTS renderer, snapshot capture, monitors).
type ActionType string

const (
	ActionSpeak           ActionType = "speak"
	ActionAlarm           ActionType = "alarm"
	ActionSnapshotRequest ActionType = "snapshot_request"
	ActionAccessGranted   ActionType = "access_granted"
)

// Action is one outbound effect. Text and Tone are set for speak actions;
// Label is set for snapshot requests.
type Action struct {
	Type        ActionType      `json:"type"`
	Text        string          `json:"text,omitempty"`
	Tone        SpeechTone      `json:"tone,omitempty"`
	Label       string          `json:"label,omitempty"`
	EncounterID EncounterID     `json:"encounter_id,omitempty"`
	Level       EscalationLevel `json:"-"`
	LevelName   string          `json:"level,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// GuardEvent is one structured entry in the append-only guard log.
type GuardEvent struct {
	Timestamp   time.Time       `json:"timestamp"`
	EncounterID EncounterID     `json:"encounter_id,omitempty"`
	Level       EscalationLevel `json:"level"`
	Type        string          `json:"event_type"`
	Detail      string          `json:"detail"`
}
