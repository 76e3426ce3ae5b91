package interrogate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/guard-agent/internal/domain"
	"github.com/PabloGalante/guard-agent/internal/observability"
)

// Classification is how the policy reads the visitor's last utterance.
type Classification string

const (
	Cooperative  Classification = "cooperative"
	Evasive      Classification = "evasive"
	Hostile      Classification = "hostile"
	Unclassified Classification = "unclassified"
)

// Directive is the policy's escalation recommendation. The engine applies it
// subject to level rules: Accept is only honored at level 1.
type Directive string

const (
	Accept   Directive = "accept"
	Maintain Directive = "maintain"
	Escalate Directive = "escalate"
)

// Decision is the policy's full answer for one exchange. Reply is always
// non-empty.
type Decision struct {
	Classification Classification
	Directive      Directive
	Reply          string
	FromFallback   bool
}

// Input is a read-only snapshot of the encounter handed to the policy.
type Input struct {
	EncounterID      domain.EncounterID
	Level            domain.EscalationLevel
	CooperationScore int
	Exchanges        int
	EvasiveStreak    int
	Elapsed          time.Duration
	ClaimedName      string
	EnrolledNames    []string
	RecentEvents     []domain.GuardEvent
	RenderedContext  string
	Utterance        string
	History          []domain.TranscriptTurn
}

// Policy produces the guard's next utterance for an encounter. It delegates
// to the LLM collaborator under a bounded timeout and falls back to the
// deterministic rule table; it never errors and never blocks past the timeout.
type Policy struct {
	llm     domain.LLMClient
	timeout time.Duration
}

func New(llm domain.LLMClient, timeout time.Duration) *Policy {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Policy{llm: llm, timeout: timeout}
}

// Opening returns the greeting spoken when an encounter begins. The choice is
// deterministic per encounter so tests and replays see stable output.
func (p *Policy) Opening(id domain.EncounterID) string {
	var sum int
	for _, c := range string(id) {
		sum += int(c)
	}
	return greetings[sum%len(greetings)]
}

// NextUtterance decides the guard's next move after a visitor utterance.
func (p *Policy) NextUtterance(ctx context.Context, in Input) Decision {
	log := observability.LoggerFromContext(ctx).With(
		"encounter_id", in.EncounterID,
		"level", in.Level.String(),
	)

	llmCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reply, err := p.llm.GenerateReply(llmCtx, buildUserPrompt(in), domain.ConversationContext{
		Purpose:     domain.PurposeInterrogation,
		EncounterID: in.EncounterID,
		Level:       in.Level,
		History:     in.History,
	})
	if err != nil {
		log.Warn("llm collaborator unavailable, using rule-based fallback", "error", err)
		return p.ruleBased(in)
	}

	decision, ok := parseVerdict(reply)
	if !ok {
		log.Warn("llm reply did not follow verdict format, using rule-based fallback")
		return p.ruleBased(in)
	}
	if decision.Reply == "" {
		decision.Reply = FallbackPhrase(in.Level, in.Exchanges)
	}
	return decision
}

// buildUserPrompt assembles the per-exchange prompt. The persona and verdict
// format instructions live in the LLM adapter's system prompt.
func buildUserPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current escalation level: %s\n", in.Level)
	fmt.Fprintf(&b, "Time elapsed: %d seconds\n", int(in.Elapsed.Seconds()))
	fmt.Fprintf(&b, "Exchanges so far: %d\n", in.Exchanges)
	fmt.Fprintf(&b, "Cooperation score: %d\n", in.CooperationScore)

	if len(in.EnrolledNames) > 0 {
		fmt.Fprintf(&b, "\nENROLLED TRUSTED PERSONS: %s\n", strings.Join(in.EnrolledNames, ", "))
	}
	if in.ClaimedName != "" {
		fmt.Fprintf(&b, "VISITOR'S STATED IDENTITY: %s\n", in.ClaimedName)
	} else {
		b.WriteString("VISITOR'S STATED IDENTITY: not yet stated\n")
	}

	if len(in.RecentEvents) > 0 {
		b.WriteString("\nRecent room activity:\n")
		for _, ev := range in.RecentEvents {
			fmt.Fprintf(&b, "[%s] %s: %s\n",
				ev.Timestamp.Format(time.RFC3339), ev.Type, ev.Detail)
		}
	}

	if in.RenderedContext != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(in.RenderedContext)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nThe visitor just said: %q\n", in.Utterance)
	return b.String()
}

// parseVerdict reads the structured three-line verdict the system prompt asks
// the model for. Returns ok=false when none of the lines are present.
func parseVerdict(reply string) (Decision, bool) {
	d := Decision{Classification: Unclassified, Directive: Maintain}
	found := false

	for _, line := range strings.Split(reply, "\n") {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "RESPONSE_TYPE:"):
			found = true
			// Models pad the value ("COOPERATIVE (sounds genuine)"); match
			// on the leading token only.
			switch v := value(line); {
			case strings.HasPrefix(v, "COOPERATIVE"):
				d.Classification = Cooperative
			case strings.HasPrefix(v, "EVASIVE"):
				d.Classification = Evasive
			case strings.HasPrefix(v, "HOSTILE"):
				d.Classification = Hostile
			}
		case strings.Contains(upper, "ESCALATION_DECISION:"):
			found = true
			switch v := value(line); {
			case strings.HasPrefix(v, "ACCEPT"):
				d.Directive = Accept
			case strings.HasPrefix(v, "ESCALATE"):
				d.Directive = Escalate
			case strings.HasPrefix(v, "MAINTAIN"):
				d.Directive = Maintain
			}
		case strings.Contains(upper, "NEXT_RESPONSE:"):
			found = true
			d.Reply = strings.Trim(rawValue(line), `"'`)
		}
	}

	return d, found
}

func value(line string) string {
	return strings.ToUpper(rawValue(line))
}

func rawValue(line string) string {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}

var (
	hostileKeywords    = []string{"none of your business", "shut up", "get lost", "screw you"}
	evasiveKeywords    = []string{"just looking", "nothing", "none", "doesn't matter"}
	legitimateKeywords = []string{"roommate", "friend", "invited", "waiting for", "pick up", "drop off"}
	politeIndicators   = []string{"please", "sorry", "thank you"}
)

// ruleBased is the deterministic keyword table used when the collaborator is
// down. It mirrors the LLM protocol: classify the utterance, recommend a
// directive, produce a non-empty reply.
func (p *Policy) ruleBased(in Input) Decision {
	text := strings.ToLower(in.Utterance)

	d := Decision{
		Classification: Unclassified,
		Directive:      Maintain,
		FromFallback:   true,
	}

	switch {
	case containsAny(text, hostileKeywords):
		d.Classification = Hostile
		d.Directive = Escalate
	case containsAny(text, legitimateKeywords):
		d.Classification = Cooperative
		d.Directive = Accept
		d.Reply = "Okay, that makes sense. Come on in!"
	case containsAny(text, evasiveKeywords):
		d.Classification = Evasive
		// One evasive answer gets another chance; a streak escalates.
		if in.EvasiveStreak >= 1 {
			d.Directive = Escalate
		}
	case containsAny(text, politeIndicators) || len(strings.TrimSpace(in.Utterance)) > 15:
		d.Classification = Cooperative
	}

	if d.Reply == "" {
		d.Reply = FallbackPhrase(in.Level, in.Exchanges)
	}
	return d
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
