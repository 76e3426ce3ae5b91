package llm

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// MockLLM is an in-process stand-in for the Vertex client. With no scripted
// replies it answers in the verdict format the interrogation policy parses,
// so the full escalation flow works offline.
type MockLLM struct {
	mu      sync.Mutex
	replies []string
	err     error

	// Delay, when set, makes each call sleep unless the context expires
	// first. Used to exercise the policy's timeout fallback.
	Delay time.Duration
}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Script queues replies returned in order. Once drained, the mock reverts to
// its default reply.
func (m *MockLLM) Script(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

// Fail makes every subsequent call return err.
func (m *MockLLM) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockLLM) GenerateReply(ctx context.Context, prompt string, convCtx domain.ConversationContext) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) > 0 {
		reply := m.replies[0]
		m.replies = m.replies[1:]
		return reply, nil
	}

	if convCtx.Purpose == domain.PurposeTrustedChat {
		return "All quiet here! Anything else you want to know?", nil
	}
	return "RESPONSE_TYPE: COOPERATIVE\nESCALATION_DECISION: MAINTAIN\nNEXT_RESPONSE: I see. And how long were you planning to stay?", nil
}
