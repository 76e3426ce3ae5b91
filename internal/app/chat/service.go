package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/guard-agent/internal/domain"
	"github.com/PabloGalante/guard-agent/internal/observability"
)

const recentEventWindow = 5

var goodbyePhrases = []string{"bye", "goodbye", "see you", "later", "thank you", "thanks", "done"}

var visitorQueryWords = []string{
	"anyone", "someone", "visitor", "came", "intruder", "person",
	"who", "been here", "while i was", "in my absence",
}

// Service handles the casual conversation with a recognized trusted person.
// It recalls recent guard events so questions like "did anyone come by?" get a
// grounded answer, and degrades to scripted replies when the LLM is away.
type Service struct {
	llm     domain.LLMClient
	events  domain.EventLog
	timeout time.Duration
}

func NewService(llm domain.LLMClient, events domain.EventLog, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{llm: llm, events: events, timeout: timeout}
}

// IsGoodbye reports whether the utterance should end the conversation.
func IsGoodbye(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range goodbyePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Reply produces the guard's answer to a trusted person. Never errors; falls
// back to scripted answers on collaborator failure.
func (s *Service) Reply(ctx context.Context, userText string, history []domain.TranscriptTurn) string {
	log := observability.LoggerFromContext(ctx)

	recent, err := s.events.Recent(ctx, recentEventWindow)
	if err != nil {
		log.Warn("failed to read recent events for chat context", "error", err)
		recent = nil
	}

	llmCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.llm.GenerateReply(llmCtx, s.buildPrompt(userText, recent), domain.ConversationContext{
		Purpose: domain.PurposeTrustedChat,
		History: history,
	})
	if err != nil {
		log.Warn("llm unavailable for trusted chat, using fallback", "error", err)
		return s.fallback(userText, recent)
	}
	reply = strings.Trim(strings.TrimSpace(reply), `"'`)
	if reply == "" {
		return s.fallback(userText, recent)
	}
	return reply
}

func (s *Service) buildPrompt(userText string, recent []domain.GuardEvent) string {
	var b strings.Builder

	if len(recent) > 0 {
		b.WriteString("Recent room activity:\n")
		for _, ev := range recent {
			fmt.Fprintf(&b, "[%s] %s: %s\n",
				ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Detail)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "The trusted person says: %q\n", userText)
	return b.String()
}

func (s *Service) fallback(userText string, recent []domain.GuardEvent) string {
	lower := strings.ToLower(userText)

	for _, word := range visitorQueryWords {
		if !strings.Contains(lower, word) {
			continue
		}
		var lastIntruder *domain.GuardEvent
		for i := range recent {
			if strings.Contains(recent[i].Type, "intruder") || strings.Contains(recent[i].Type, "alarm") {
				lastIntruder = &recent[i]
			}
		}
		if lastIntruder != nil {
			return fmt.Sprintf("Yes, there was an unrecognized person at %s.",
				lastIntruder.Timestamp.Format("15:04"))
		}
		return "No visitors while you were away. All clear!"
	}

	if strings.Contains(lower, "how are you") || strings.Contains(lower, "whats up") {
		return "I'm doing great! Just keeping your room safe."
	}

	return "I'm here keeping your room safe! Feel free to chat."
}
