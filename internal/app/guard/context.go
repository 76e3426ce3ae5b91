package guard

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/guard-agent/internal/domain"
)

// ContextWindow is the bounded dialogue memory of one encounter. It keeps the
// last maxTurns turns verbatim and only counts the rest; turns are never
// reordered. The full transcript lives on the Encounter, this window only
// feeds prompt construction.
type ContextWindow struct {
	maxTurns int
	turns    []domain.TranscriptTurn
	dropped  int
}

func NewContextWindow(maxTurns int) *ContextWindow {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &ContextWindow{maxTurns: maxTurns}
}

func (w *ContextWindow) Append(turn domain.TranscriptTurn) {
	w.turns = append(w.turns, turn)
	if len(w.turns) > w.maxTurns {
		w.dropped += len(w.turns) - w.maxTurns
		w.turns = w.turns[len(w.turns)-w.maxTurns:]
	}
}

// Turns returns the retained turns, oldest first.
func (w *ContextWindow) Turns() []domain.TranscriptTurn {
	out := make([]domain.TranscriptTurn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Dropped reports how many older turns were elided.
func (w *ContextWindow) Dropped() int {
	return w.dropped
}

// RenderForPolicy produces a deterministic textual view for the interrogation
// policy: most recent turns verbatim, older turns reduced to an elision note.
// maxChars bounds the output; trimming removes the oldest retained turns
// first, never the most recent ones.
func (w *ContextWindow) RenderForPolicy(maxChars int) string {
	if maxChars <= 0 {
		maxChars = 4000
	}

	lines := make([]string, 0, len(w.turns))
	for _, t := range w.turns {
		lines = append(lines, string(t.Speaker)+": "+t.Text)
	}

	elided := w.dropped
	for {
		var b strings.Builder
		if elided > 0 {
			fmt.Fprintf(&b, "[%d earlier turn(s) elided]\n", elided)
		}
		b.WriteString(strings.Join(lines, "\n"))
		out := b.String()
		if len(out) <= maxChars || len(lines) == 0 {
			return out
		}
		lines = lines[1:]
		elided++
	}
}
