package guard

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

func turn(speaker domain.Role, text string) domain.TranscriptTurn {
	return domain.TranscriptTurn{Speaker: speaker, Text: text}
}

func TestContextWindowKeepsMostRecent(t *testing.T) {
	w := NewContextWindow(3)

	for i := 0; i < 5; i++ {
		w.Append(turn(domain.RoleVisitor, fmt.Sprintf("turn %d", i)))
	}

	turns := w.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 retained turns, got %d", len(turns))
	}
	if turns[0].Text != "turn 2" || turns[2].Text != "turn 4" {
		t.Fatalf("unexpected retained turns: %v", turns)
	}
	if w.Dropped() != 2 {
		t.Fatalf("expected 2 dropped turns, got %d", w.Dropped())
	}
}

func TestContextWindowRenderIncludesElisionNote(t *testing.T) {
	w := NewContextWindow(2)

	w.Append(turn(domain.RoleGuard, "who are you"))
	w.Append(turn(domain.RoleVisitor, "a friend"))
	w.Append(turn(domain.RoleGuard, "whose friend"))

	out := w.RenderForPolicy(0)
	if !strings.HasPrefix(out, "[1 earlier turn(s) elided]") {
		t.Fatalf("expected elision header, got %q", out)
	}
	if !strings.Contains(out, "guard: whose friend") {
		t.Fatalf("expected most recent turn, got %q", out)
	}
	if strings.Contains(out, "who are you") {
		t.Fatalf("dropped turn should not render, got %q", out)
	}
}

func TestContextWindowRenderTrimsOldestFirst(t *testing.T) {
	w := NewContextWindow(10)

	w.Append(turn(domain.RoleVisitor, strings.Repeat("a", 50)))
	w.Append(turn(domain.RoleVisitor, "recent"))

	out := w.RenderForPolicy(50)
	if !strings.Contains(out, "recent") {
		t.Fatalf("most recent turn must survive trimming, got %q", out)
	}
	if strings.Contains(out, strings.Repeat("a", 50)) {
		t.Fatalf("oldest turn should have been trimmed, got %q", out)
	}
}
