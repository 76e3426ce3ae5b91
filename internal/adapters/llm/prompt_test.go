package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

func TestBuildSystemPromptByPurpose(t *testing.T) {
	interrogation := BuildSystemPrompt(domain.ConversationContext{
		Purpose: domain.PurposeInterrogation,
		Level:   domain.Level1Inquiry,
	})
	if !strings.Contains(interrogation, "RESPONSE_TYPE:") {
		t.Fatal("interrogation prompt must instruct the verdict format")
	}
	if !strings.Contains(interrogation, "polite inquiry") {
		t.Fatal("expected level 1 posture instructions")
	}

	final := BuildSystemPrompt(domain.ConversationContext{
		Purpose: domain.PurposeInterrogation,
		Level:   domain.Level3Interrogation,
	})
	if !strings.Contains(final, "Never choose ACCEPT") {
		t.Fatal("expected level 3 posture instructions")
	}

	chat := BuildSystemPrompt(domain.ConversationContext{Purpose: domain.PurposeTrustedChat})
	if strings.Contains(chat, "RESPONSE_TYPE:") {
		t.Fatal("trusted chat prompt must not carry the verdict format")
	}
}

func TestMockDefaultReplyFollowsVerdictFormat(t *testing.T) {
	mock := NewMockLLM()

	reply, err := mock.GenerateReply(context.Background(), "hello", domain.ConversationContext{
		Purpose: domain.PurposeInterrogation,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"RESPONSE_TYPE:", "ESCALATION_DECISION:", "NEXT_RESPONSE:"} {
		if !strings.Contains(reply, field) {
			t.Fatalf("default mock reply missing %s: %q", field, reply)
		}
	}
}

func TestMockScriptedRepliesInOrder(t *testing.T) {
	mock := NewMockLLM()
	mock.Script("first", "second")

	ctx := context.Background()
	convCtx := domain.ConversationContext{Purpose: domain.PurposeTrustedChat}

	for _, want := range []string{"first", "second"} {
		got, err := mock.GenerateReply(ctx, "x", convCtx)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}

	// Drained: back to the default.
	got, err := mock.GenerateReply(ctx, "x", convCtx)
	if err != nil {
		t.Fatal(err)
	}
	if got == "first" || got == "second" {
		t.Fatalf("scripted replies should be consumed, got %q", got)
	}
}
