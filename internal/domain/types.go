package domain

type EncounterID string

// GuardMode is the process-wide operating mode. Modes are mutually exclusive
// and transitions are serialized by the engine's event loop.
type GuardMode string

const (
	ModeIdle        GuardMode = "idle"
	ModeGuarding    GuardMode = "guarding"
	ModeEnrolling   GuardMode = "enrolling"
	ModeTrustedChat GuardMode = "trusted_chat"
)

// EscalationLevel is the ordered severity tier of an encounter. Levels only
// ever move forward within one encounter.
type EscalationLevel int

const (
	LevelMonitoring EscalationLevel = iota
	Level1Inquiry
	Level2Warning
	Level3Interrogation
	Level4Alarm
)

func (l EscalationLevel) String() string {
	switch l {
	case LevelMonitoring:
		return "monitoring"
	case Level1Inquiry:
		return "level1_inquiry"
	case Level2Warning:
		return "level2_warning"
	case Level3Interrogation:
		return "level3_interrogation"
	case Level4Alarm:
		return "level4_alarm"
	default:
		return "unknown"
	}
}

// Resolution records how an encounter ended. Empty means still open.
type Resolution string

const (
	ResolutionGranted Resolution = "granted"
	ResolutionLeft    Resolution = "left"
	ResolutionAlarm   Resolution = "alarm"
	ResolutionAborted Resolution = "aborted"
)

type Role string

const (
	RoleGuard   Role = "guard"
	RoleVisitor Role = "visitor"
)

// SpeechTone is passed to the external TTS renderer alongside each utterance.
type SpeechTone string

const (
	ToneNormal   SpeechTone = "normal"
	ToneFriendly SpeechTone = "friendly"
	ToneAlert    SpeechTone = "alert"
)

// ToneForLevel maps an escalation level to the voice the renderer should use.
// Level 2 and above always sound the alert voice.
func ToneForLevel(level EscalationLevel) SpeechTone {
	if level >= Level2Warning {
		return ToneAlert
	}
	return ToneNormal
}

// VoiceCommand is a recognized control phrase produced by the external speech
// collaborator. Anything else is dropped before it reaches the engine.
type VoiceCommand string

const (
	CommandEnroll   VoiceCommand = "enroll"
	CommandGuardOn  VoiceCommand = "guard_on"
	CommandGuardOff VoiceCommand = "guard_off"
	CommandBye      VoiceCommand = "bye"
)
