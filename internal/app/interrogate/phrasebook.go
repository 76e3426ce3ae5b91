package interrogate

import "github.com/PabloGalante/guard-agent/internal/domain"

// phrasebook is the deterministic fallback used whenever the LLM collaborator
// is unavailable, times out, or returns an unusable reply. Every level has at
// least one phrase, so a fallback utterance is never empty.
var phrasebook = map[domain.EscalationLevel][]string{
	domain.Level1Inquiry: {
		"Can you please tell me your name and why you're in this room?",
		"I need to know who you are. This is a private room.",
	},
	domain.Level2Warning: {
		"I'm not satisfied with your answer. Who exactly are you here for?",
		"This room is monitored. Tell me exactly what you're doing here.",
	},
	domain.Level3Interrogation: {
		"This is your final warning. Leave this room immediately.",
		"Leave right now. This is private property and you're trespassing.",
	},
	domain.Level4Alarm: {
		"Security alert! I'm calling the authorities right now!",
		"ALARM! Security is being notified! Leave immediately!",
	},
}

var greetings = []string{
	"Hello! I don't recognize you. Who are you and what brings you here?",
	"Excuse me, I haven't seen you before. May I know your name and why you're here?",
	"Hi there. I don't believe we've met. Can you tell me who you are?",
}

// FallbackPhrase returns a non-empty scripted line for the level. The index
// rotates deterministically with n so repeated fallbacks vary.
func FallbackPhrase(level domain.EscalationLevel, n int) string {
	phrases, ok := phrasebook[level]
	if !ok || len(phrases) == 0 {
		return "Please identify yourself."
	}
	if n < 0 {
		n = -n
	}
	return phrases[n%len(phrases)]
}
