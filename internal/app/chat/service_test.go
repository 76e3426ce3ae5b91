package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PabloGalante/guard-agent/internal/adapters/llm"
	memstore "github.com/PabloGalante/guard-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/guard-agent/internal/domain"
)

func TestIsGoodbye(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"bye!", true},
		{"ok thanks, see you", true},
		{"GOODBYE", true},
		{"did anyone come by?", false},
		{"how are you", false},
	}
	for _, tt := range tests {
		if got := IsGoodbye(tt.text); got != tt.want {
			t.Fatalf("IsGoodbye(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestReplyUsesLLM(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Script(`"All good, nothing to report!"`)
	svc := NewService(mock, memstore.NewEventLog(), time.Second)

	got := svc.Reply(context.Background(), "everything okay?", nil)

	if got != "All good, nothing to report!" {
		t.Fatalf("expected trimmed LLM reply, got %q", got)
	}
}

func TestReplyFallbackRecallsIntruderEvents(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Fail(errors.New("backend down"))

	events := memstore.NewEventLog()
	at := time.Date(2026, 3, 1, 15, 4, 0, 0, time.UTC)
	if err := events.Append(context.Background(), domain.GuardEvent{
		Timestamp: at,
		Type:      "intruder_detected",
		Detail:    "starting interrogation",
	}); err != nil {
		t.Fatal(err)
	}

	svc := NewService(mock, events, time.Second)
	got := svc.Reply(context.Background(), "did anyone come by while I was out?", nil)

	if got != "Yes, there was an unrecognized person at 15:04." {
		t.Fatalf("unexpected recall answer: %q", got)
	}
}

func TestReplyFallbackAllClear(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Fail(errors.New("backend down"))
	svc := NewService(mock, memstore.NewEventLog(), time.Second)

	got := svc.Reply(context.Background(), "was there any visitor today?", nil)

	if got != "No visitors while you were away. All clear!" {
		t.Fatalf("unexpected answer: %q", got)
	}
}

func TestReplyFallbackSmallTalk(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Fail(errors.New("backend down"))
	svc := NewService(mock, memstore.NewEventLog(), time.Second)

	got := svc.Reply(context.Background(), "how are you doing?", nil)

	if got != "I'm doing great! Just keeping your room safe." {
		t.Fatalf("unexpected answer: %q", got)
	}
}
