package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/guard-agent/internal/app/chat"
	"github.com/PabloGalante/guard-agent/internal/app/interrogate"
	"github.com/PabloGalante/guard-agent/internal/app/resolve"
	"github.com/PabloGalante/guard-agent/internal/domain"
	"github.com/PabloGalante/guard-agent/internal/observability"
)

// Params are the escalation policy knobs. They come from config so the state
// machine itself stays pure and testable.
type Params struct {
	DebounceWindow time.Duration
	Level1Timeout  time.Duration
	Level2Timeout  time.Duration
	Level3Timeout  time.Duration

	// A trusted match must win a majority of this many recent frames before
	// the engine acts on it.
	SmoothWindow int

	ContextTurns int

	ScoreCooperative int
	ScoreEvasive     int
	ScoreHostile     int

	CooperationGate        int
	InterrogationExchanges int

	GrantMinCooperative int
	GrantMinElapsed     time.Duration

	ChatSilenceTimeout time.Duration
}

func (p *Params) normalize() {
	if p.DebounceWindow <= 0 {
		p.DebounceWindow = 2 * time.Second
	}
	if p.Level1Timeout <= 0 {
		p.Level1Timeout = 30 * time.Second
	}
	if p.Level2Timeout <= 0 {
		p.Level2Timeout = 20 * time.Second
	}
	if p.Level3Timeout <= 0 {
		p.Level3Timeout = 45 * time.Second
	}
	if p.SmoothWindow <= 0 {
		p.SmoothWindow = 5
	}
	if p.ContextTurns <= 0 {
		p.ContextTurns = 20
	}
	if p.ScoreCooperative == 0 {
		p.ScoreCooperative = 1
	}
	if p.ScoreEvasive == 0 {
		p.ScoreEvasive = -1
	}
	if p.ScoreHostile == 0 {
		p.ScoreHostile = -2
	}
	if p.InterrogationExchanges <= 0 {
		p.InterrogationExchanges = 3
	}
	if p.GrantMinCooperative <= 0 {
		p.GrantMinCooperative = 5
	}
	if p.GrantMinElapsed <= 0 {
		p.GrantMinElapsed = 60 * time.Second
	}
	if p.ChatSilenceTimeout <= 0 {
		p.ChatSilenceTimeout = 30 * time.Second
	}
}

// Deps are the engine's collaborators.
type Deps struct {
	Resolver *resolve.Resolver
	Policy   *interrogate.Policy
	Chat     *chat.Service
	Roster   domain.RosterStore
	Archive  domain.EncounterArchive
	Events   domain.EventLog
	Actions  domain.ActionSink
	Now      func() time.Time
}

// Engine is the escalation state machine. Producers enqueue events from any
// goroutine; Run consumes them one at a time, so no two transitions for the
// same encounter ever execute concurrently and all state mutation happens on
// the consumer.
type Engine struct {
	params Params

	resolver *resolve.Resolver
	policy   *interrogate.Policy
	chat     *chat.Service
	roster   domain.RosterStore
	archive  domain.EncounterArchive
	events   domain.EventLog
	actions  domain.ActionSink
	now      func() time.Time

	session *Session
	queue   *eventQueue

	// Everything below is owned by the consumer loop.

	mode domain.GuardMode
	enc  *domain.Encounter

	// Trusted roster, cached at guard activation. Never reloaded while an
	// encounter is open.
	identities  []*domain.TrustedIdentity
	rosterNames []string

	// Recent recognition outcomes, newest last, "" for unknown. A trusted
	// name acts only once it holds a majority of this buffer.
	votes []string

	// Per-encounter working state, reset when the encounter closes.
	window          *ContextWindow
	lastVerdict     domain.IdentityVerdict
	exchanges       int
	exchangesAtL3   int
	cooperative     int
	evasiveStreak   int
	claimAccepted   bool
	grantSuppressed bool

	// Trusted chat state.
	chatPartner string
	chatHistory []domain.TranscriptTurn
	lastChatAt  time.Time
}

func NewEngine(params Params, deps Deps) *Engine {
	params.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		params:   params,
		resolver: deps.Resolver,
		policy:   deps.Policy,
		chat:     deps.Chat,
		roster:   deps.Roster,
		archive:  deps.Archive,
		events:   deps.Events,
		actions:  deps.Actions,
		now:      deps.Now,
		session:  NewSession(),
		queue:    newEventQueue(),
		mode:     domain.ModeIdle,
	}
}

func (e *Engine) Session() *Session {
	return e.session
}

// ─────────────────────────────────────────────
// Producers: called from any goroutine
// ─────────────────────────────────────────────

func (e *Engine) EnqueueObservation(obs domain.FaceObservation) bool {
	return e.queue.Enqueue(domain.Event{
		Type:        domain.EventFaceObserved,
		Observation: &obs,
		Timestamp:   obs.Timestamp,
	})
}

func (e *Engine) EnqueueFaceLost(at time.Time) bool {
	return e.queue.Enqueue(domain.Event{Type: domain.EventFaceLost, Timestamp: at})
}

func (e *Engine) EnqueueTranscript(text string, at time.Time) bool {
	return e.queue.Enqueue(domain.Event{
		Type:       domain.EventSpeechHeard,
		Transcript: &domain.TranscriptEvent{Text: text, Timestamp: at},
		Timestamp:  at,
	})
}

func (e *Engine) EnqueueSpeechFailure(at time.Time) bool {
	return e.queue.Enqueue(domain.Event{Type: domain.EventSpeechFailed, Timestamp: at})
}

func (e *Engine) EnqueueCommand(cmd domain.VoiceCommand, at time.Time) bool {
	return e.queue.Enqueue(domain.Event{Type: domain.EventCommand, Command: cmd, Timestamp: at})
}

func (e *Engine) EnqueueEnrollmentDone(name string, at time.Time) bool {
	return e.queue.Enqueue(domain.Event{Type: domain.EventEnrollmentDone, Enrolled: name, Timestamp: at})
}

// ─────────────────────────────────────────────
// Consumer loop
// ─────────────────────────────────────────────

// Run consumes the event queue until ctx is cancelled. tick drives
// timer-based transitions.
func (e *Engine) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		for {
			ev, ok := e.queue.TryDequeue()
			if !ok {
				break
			}
			e.Handle(ctx, ev)
		}

		select {
		case <-ctx.Done():
			e.queue.Close()
			return
		case <-e.queue.Wait():
		case <-ticker.C:
			e.Handle(ctx, domain.Event{Type: domain.EventTick, Timestamp: e.now()})
		}
	}
}

// Handle processes one event. It is the only place state is mutated and must
// only be called from the consumer goroutine (or directly in tests).
func (e *Engine) Handle(ctx context.Context, ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	if e.enc != nil {
		ctx = observability.WithEncounterID(ctx, string(e.enc.ID))
	}
	defer func() {
		e.session.publish(e.mode, e.enc)
	}()

	switch ev.Type {
	case domain.EventCommand:
		e.handleCommand(ctx, ev.Command)
	case domain.EventEnrollmentDone:
		e.handleEnrollmentDone(ctx, ev.Enrolled)
	case domain.EventTick:
		e.handleTick(ctx, ev.Timestamp)
	case domain.EventFaceObserved:
		if ev.Observation != nil {
			e.handleFaceObserved(ctx, *ev.Observation)
		}
	case domain.EventFaceLost:
		e.handleFaceLost(ctx, ev.Timestamp)
	case domain.EventSpeechHeard:
		if ev.Transcript != nil {
			e.handleSpeechHeard(ctx, *ev.Transcript)
		}
	case domain.EventSpeechFailed:
		// An explicit recognition failure is not silence: log it, score
		// nothing, and let the level timers keep forcing progress.
		e.logEvent(ctx, "speech_recognition_failed", "speech collaborator could not transcribe")
	}
}

// ─────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────

func (e *Engine) handleCommand(ctx context.Context, cmd domain.VoiceCommand) {
	switch cmd {
	case domain.CommandGuardOn:
		e.activateGuard(ctx)
	case domain.CommandGuardOff:
		e.deactivateGuard(ctx)
	case domain.CommandEnroll:
		e.startEnrollment(ctx)
	case domain.CommandBye:
		if e.mode == domain.ModeTrustedChat {
			e.speak(nil, "Goodbye! Resuming monitoring.", domain.ToneFriendly)
			e.endTrustedChat(ctx)
		}
	default:
		// Unrecognized commands are ignored, not errors.
		observability.LoggerFromContext(ctx).Info("ignoring unrecognized command", "command", string(cmd))
	}
}

func (e *Engine) activateGuard(ctx context.Context) {
	switch e.mode {
	case domain.ModeGuarding, domain.ModeTrustedChat:
		e.speak(nil, "Guard mode is already active.", domain.ToneNormal)
		return
	case domain.ModeEnrolling:
		e.speak(nil, "Finish enrollment before activating guard mode.", domain.ToneNormal)
		return
	}

	identities, err := e.roster.ListIdentities(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to load roster", "error", err)
		e.speak(nil, "Cannot activate guard mode. The trusted roster is unavailable.", domain.ToneAlert)
		return
	}
	if len(identities) == 0 {
		e.speak(nil, "Cannot activate guard mode. No trusted persons enrolled.", domain.ToneAlert)
		return
	}

	e.identities = identities
	e.rosterNames = e.rosterNames[:0]
	for _, id := range identities {
		e.rosterNames = append(e.rosterNames, id.Name)
	}
	e.votes = nil

	e.mode = domain.ModeGuarding
	e.logEvent(ctx, "guard_activated",
		fmt.Sprintf("monitoring for %d trusted person(s)", len(identities)))
	e.speak(nil,
		fmt.Sprintf("Guard mode activated. Monitoring for %d trusted person(s).", len(identities)),
		domain.ToneNormal)
}

func (e *Engine) deactivateGuard(ctx context.Context) {
	if e.mode != domain.ModeGuarding && e.mode != domain.ModeTrustedChat {
		return
	}

	// Deactivation aborts the open encounter with no grant or alarm side
	// effects; pending interrogation decisions are simply dropped.
	if e.enc != nil && e.enc.Open() {
		e.logEvent(ctx, "encounter_aborted", "guard mode deactivated mid-encounter")
		e.closeEncounter(ctx, domain.ResolutionAborted)
	}

	e.mode = domain.ModeIdle
	e.logEvent(ctx, "guard_deactivated", "guard mode deactivated")
	e.speak(nil, "Guard mode deactivated.", domain.ToneNormal)
}

func (e *Engine) startEnrollment(ctx context.Context) {
	switch e.mode {
	case domain.ModeGuarding, domain.ModeTrustedChat:
		e.speak(nil, "Cannot enroll while guard mode is active.", domain.ToneAlert)
		return
	case domain.ModeEnrolling:
		return
	}

	e.mode = domain.ModeEnrolling
	e.logEvent(ctx, "enrollment_started", "waiting for captures")
	e.speak(nil, "Enrollment started. Please state the name and capture the face poses.", domain.ToneNormal)
}

func (e *Engine) handleEnrollmentDone(ctx context.Context, name string) {
	switch e.mode {
	case domain.ModeEnrolling:
		e.mode = domain.ModeIdle
	case domain.ModeIdle:
		// Committed over HTTP without the voice flow; nothing to unwind.
	default:
		e.logEvent(ctx, "inconsistent_state", "enrollment completion outside enrolling mode")
		return
	}
	e.logEvent(ctx, "enrollment_complete", fmt.Sprintf("new person enrolled: %s", name))
	e.speak(nil, fmt.Sprintf("Enrollment complete. Welcome aboard, %s.", name), domain.ToneFriendly)
}

// ─────────────────────────────────────────────
// Timers
// ─────────────────────────────────────────────

func (e *Engine) handleTick(ctx context.Context, at time.Time) {
	switch e.mode {
	case domain.ModeTrustedChat:
		if !e.lastChatAt.IsZero() && at.Sub(e.lastChatAt) >= e.params.ChatSilenceTimeout {
			e.speak(nil, "Conversation timed out. Resuming monitoring.", domain.ToneNormal)
			e.endTrustedChat(ctx)
		}
	case domain.ModeGuarding:
		if e.enc == nil || !e.enc.Open() {
			return
		}
		// Every non-monitoring level carries a timer that forces forward
		// progress even when collaborators are silent.
		switch e.enc.CurrentLevel {
		case domain.Level1Inquiry:
			if at.Sub(e.enc.LevelEnteredAt) >= e.params.Level1Timeout {
				e.escalate(ctx, domain.Level2Warning, "level 1 timer expired with no acceptable claim")
				e.speak(e.enc, interrogate.FallbackPhrase(domain.Level2Warning, e.exchanges), domain.ToneAlert)
			}
		case domain.Level2Warning:
			if at.Sub(e.enc.LevelEnteredAt) >= e.params.Level2Timeout {
				e.escalate(ctx, domain.Level3Interrogation, "level 2 timer expired")
				e.speak(e.enc, interrogate.FallbackPhrase(domain.Level3Interrogation, e.exchanges), domain.ToneAlert)
			}
		case domain.Level3Interrogation:
			if at.Sub(e.enc.LevelEnteredAt) >= e.params.Level3Timeout {
				e.triggerAlarm(ctx, "level 3 timer expired without cooperation")
			}
		}
	}
}

// ─────────────────────────────────────────────
// Vision events
// ─────────────────────────────────────────────

func (e *Engine) handleFaceObserved(ctx context.Context, obs domain.FaceObservation) {
	if e.mode != domain.ModeGuarding {
		return
	}

	verdict := e.resolver.Resolve(e.identities, obs.Embedding)

	if verdict.IsTrusted {
		e.recordVote(verdict.MatchedName)
		// A lone trusted frame can be a misread; act only once the name
		// wins a majority of the recent recognition window.
		if e.voteCount(verdict.MatchedName) < e.params.SmoothWindow/2+1 {
			if e.enc != nil && e.enc.Open() {
				e.enc.LastSeen = obs.Timestamp
			}
			return
		}
		e.lastVerdict = verdict
		e.handleTrustedFace(ctx, verdict, obs.Timestamp)
		return
	}

	e.recordVote("")
	e.lastVerdict = verdict

	if e.enc != nil && e.enc.Open() {
		e.enc.LastSeen = obs.Timestamp
		if e.enc.CurrentLevel == domain.LevelMonitoring &&
			obs.Timestamp.Sub(e.enc.StartTime) >= e.params.DebounceWindow {
			e.beginInquiry(ctx, obs.Timestamp)
		}
		return
	}

	// First sighting: open an encounter at monitoring level and wait out the
	// debounce window before addressing the person.
	e.enc = &domain.Encounter{
		ID:             domain.EncounterID(uuid.NewString()),
		StartTime:      obs.Timestamp,
		CurrentLevel:   domain.LevelMonitoring,
		LevelEnteredAt: obs.Timestamp,
		LastSeen:       obs.Timestamp,
	}
	e.window = NewContextWindow(e.params.ContextTurns)
	ctx = observability.WithEncounterID(ctx, string(e.enc.ID))
	e.logEvent(ctx, "unknown_face_observed", "unrecognized face, debouncing")
}

func (e *Engine) handleTrustedFace(ctx context.Context, verdict domain.IdentityVerdict, at time.Time) {
	if e.enc != nil && e.enc.Open() {
		e.enc.VisionIdentity = verdict.MatchedName

		if CheckClaim(e.enc.ClaimedIdentity, verdict, e.rosterNames) == ClaimInconsistent {
			e.speak(e.enc, fmt.Sprintf(
				"You told me you were %s, but I recognize you as someone else. Security is being alerted.",
				e.enc.ClaimedIdentity), domain.ToneAlert)
			e.triggerAlarm(ctx, fmt.Sprintf(
				"claimed %q but vision resolved %q", e.enc.ClaimedIdentity, verdict.MatchedName))
			return
		}

		// The face itself turned out to be trusted: resolve the encounter as
		// granted and switch to the welcome flow.
		e.logEvent(ctx, "trusted_identified_mid_encounter", verdict.MatchedName)
		e.emit(domain.Action{Type: domain.ActionAccessGranted, EncounterID: e.enc.ID, Timestamp: e.now()})
		e.closeEncounter(ctx, domain.ResolutionGranted)
	}

	e.beginTrustedChat(ctx, verdict.MatchedName, at)
}

func (e *Engine) beginInquiry(ctx context.Context, at time.Time) {
	e.escalate(ctx, domain.Level1Inquiry, "unrecognized face persisted past debounce window")
	e.logEvent(ctx, "intruder_detected", "starting interrogation")
	e.emit(domain.Action{
		Type:        domain.ActionSnapshotRequest,
		Label:       "unknown",
		EncounterID: e.enc.ID,
		Timestamp:   at,
	})
	e.speak(e.enc, e.policy.Opening(e.enc.ID), domain.ToneNormal)
}

func (e *Engine) recordVote(name string) {
	e.votes = append(e.votes, name)
	if len(e.votes) > e.params.SmoothWindow {
		e.votes = e.votes[1:]
	}
}

func (e *Engine) voteCount(name string) int {
	n := 0
	for _, v := range e.votes {
		if v == name {
			n++
		}
	}
	return n
}

func (e *Engine) handleFaceLost(ctx context.Context, at time.Time) {
	e.votes = nil
	if e.mode != domain.ModeGuarding || e.enc == nil || !e.enc.Open() {
		return
	}

	switch e.enc.CurrentLevel {
	case domain.LevelMonitoring:
		e.logEvent(ctx, "departed_before_contact", "face lost during debounce")
		e.closeEncounter(ctx, domain.ResolutionLeft)

	case domain.Level1Inquiry:
		// Cooperative grant: an accepted identity claim plus departure before
		// the level 1 timer. Only possible here; once a warning has been
		// issued, verbal cooperation alone can no longer grant access.
		if e.claimAccepted && !e.grantSuppressed {
			e.grantAccess(ctx, "left after stating an acceptable identity")
			return
		}
		e.logEvent(ctx, "intruder_departed", "left during inquiry")
		e.closeEncounter(ctx, domain.ResolutionLeft)

	case domain.Level2Warning:
		e.logEvent(ctx, "intruder_departed", "left after warning")
		e.closeEncounter(ctx, domain.ResolutionLeft)

	case domain.Level3Interrogation:
		e.logEvent(ctx, "departed_during_interrogation", "left mid-interrogation")
		e.closeEncounter(ctx, domain.ResolutionLeft)
	}
}

// ─────────────────────────────────────────────
// Speech events
// ─────────────────────────────────────────────

func (e *Engine) handleSpeechHeard(ctx context.Context, tev domain.TranscriptEvent) {
	switch e.mode {
	case domain.ModeTrustedChat:
		e.handleTrustedSpeech(ctx, tev)
	case domain.ModeGuarding:
		if e.enc == nil || !e.enc.Open() || e.enc.CurrentLevel < domain.Level1Inquiry {
			// Nobody has been addressed yet.
			return
		}
		e.handleVisitorSpeech(ctx, tev)
	}
}

func (e *Engine) handleVisitorSpeech(ctx context.Context, tev domain.TranscriptEvent) {
	enc := e.enc
	enc.AppendTurn(domain.RoleVisitor, tev.Text, tev.Timestamp)
	e.window.Append(domain.TranscriptTurn{Speaker: domain.RoleVisitor, Text: tev.Text, Timestamp: tev.Timestamp})
	e.exchanges++
	if enc.CurrentLevel == domain.Level3Interrogation {
		e.exchangesAtL3++
	}
	e.logEvent(ctx, "intruder_speech", tev.Text)

	if enc.ClaimedIdentity == "" {
		if name := interrogate.ExtractClaimedName(tev.Text); name != "" {
			enc.ClaimedIdentity = name
			e.logEvent(ctx, "intruder_name_extracted", name)
		}
	}

	switch CheckClaim(enc.ClaimedIdentity, e.lastVerdict, e.rosterNames) {
	case ClaimInconsistent:
		// Strongest signal: a trusted face contradicted by the claim jumps to
		// the alarm within this one event, regardless of the current level.
		e.speak(enc, fmt.Sprintf(
			"You say you're %s, but I recognize you as %s. Security is being alerted.",
			enc.ClaimedIdentity, enc.VisionIdentity), domain.ToneAlert)
		e.triggerAlarm(ctx, fmt.Sprintf(
			"impersonation: claimed %q, vision resolved %q", enc.ClaimedIdentity, enc.VisionIdentity))
		return

	case ClaimUnverifiable:
		if !e.grantSuppressed {
			e.grantSuppressed = true
			enc.CooperationScore += e.params.ScoreHostile
			e.logEvent(ctx, "claim_unverifiable",
				fmt.Sprintf("claims enrolled person %q but face was not recognized", enc.ClaimedIdentity))
			if enc.CurrentLevel < domain.Level3Interrogation {
				e.escalate(ctx, enc.CurrentLevel+1, "unverifiable identity claim")
			}
			e.speak(enc, fmt.Sprintf(
				"You say you're %s, but my facial recognition didn't identify you. That's very suspicious. Explain yourself now!",
				enc.ClaimedIdentity), domain.ToneAlert)
			return
		}

	case ClaimConsistent:
		e.claimAccepted = enc.ClaimedIdentity != ""
	}

	recent, err := e.events.Recent(ctx, 5)
	if err != nil {
		recent = nil
	}

	decision := e.policy.NextUtterance(ctx, interrogate.Input{
		EncounterID:      enc.ID,
		Level:            enc.CurrentLevel,
		CooperationScore: enc.CooperationScore,
		Exchanges:        e.exchanges,
		EvasiveStreak:    e.evasiveStreak,
		Elapsed:          tev.Timestamp.Sub(enc.StartTime),
		ClaimedName:      enc.ClaimedIdentity,
		EnrolledNames:    e.rosterNames,
		RecentEvents:     recent,
		RenderedContext:  e.window.RenderForPolicy(2000),
		Utterance:        tev.Text,
		History:          e.window.Turns(),
	})

	switch decision.Classification {
	case interrogate.Cooperative:
		enc.CooperationScore += e.params.ScoreCooperative
		e.cooperative++
		e.evasiveStreak = 0
		// A cooperative exchange restarts the level 1 timer, so a visitor
		// who keeps answering stays at level 1 long enough for the
		// time-based grant to come into reach.
		if enc.CurrentLevel == domain.Level1Inquiry {
			enc.LevelEnteredAt = tev.Timestamp
		}
	case interrogate.Evasive:
		enc.CooperationScore += e.params.ScoreEvasive
		e.evasiveStreak++
	case interrogate.Hostile:
		enc.CooperationScore += e.params.ScoreHostile
		e.evasiveStreak = 0
	}

	switch decision.Directive {
	case interrogate.Accept:
		if enc.CurrentLevel == domain.Level1Inquiry && !e.grantSuppressed {
			e.speak(enc, decision.Reply, domain.ToneNormal)
			e.grantAccess(ctx, "accepted by interrogation policy at level 1")
			return
		}
		// Past level 1, verbal cooperation alone cannot re-grant access.
		e.speak(enc, "I appreciate your explanation, but you need to leave now.", domain.ToneAlert)

	case interrogate.Escalate:
		next := enc.CurrentLevel + 1
		if next >= domain.Level4Alarm {
			e.triggerAlarm(ctx, "interrogation policy escalated to alarm")
			return
		}
		e.escalate(ctx, next, "interrogation policy escalated")
		e.speak(enc, decision.Reply, domain.ToneForLevel(enc.CurrentLevel))

	case interrogate.Maintain:
		e.speak(enc, decision.Reply, domain.ToneForLevel(enc.CurrentLevel))
	}

	// Time-based acceptance, only ever at level 1.
	if enc.CurrentLevel == domain.Level1Inquiry && !e.grantSuppressed &&
		e.cooperative >= e.params.GrantMinCooperative &&
		tev.Timestamp.Sub(enc.StartTime) >= e.params.GrantMinElapsed {
		e.speak(enc, "You've answered my questions well. I'll grant you access. Welcome!", domain.ToneFriendly)
		e.grantAccess(ctx, "sustained cooperation within level 1")
		return
	}

	// Level 3 cooperation gate.
	if enc.CurrentLevel == domain.Level3Interrogation &&
		e.exchangesAtL3 >= e.params.InterrogationExchanges &&
		enc.CooperationScore < e.params.CooperationGate {
		e.triggerAlarm(ctx, fmt.Sprintf(
			"cooperation score %d stayed below %d after %d exchanges",
			enc.CooperationScore, e.params.CooperationGate, e.exchangesAtL3))
	}
}

func (e *Engine) handleTrustedSpeech(ctx context.Context, tev domain.TranscriptEvent) {
	e.lastChatAt = tev.Timestamp

	if chat.IsGoodbye(tev.Text) {
		e.speak(nil, "Goodbye! Resuming monitoring.", domain.ToneFriendly)
		e.endTrustedChat(ctx)
		return
	}

	e.chatHistory = append(e.chatHistory, domain.TranscriptTurn{
		Speaker: domain.RoleVisitor, Text: tev.Text, Timestamp: tev.Timestamp,
	})
	reply := e.chat.Reply(ctx, tev.Text, e.chatHistory)
	e.chatHistory = append(e.chatHistory, domain.TranscriptTurn{
		Speaker: domain.RoleGuard, Text: reply, Timestamp: e.now(),
	})
	if len(e.chatHistory) > e.params.ContextTurns {
		e.chatHistory = e.chatHistory[len(e.chatHistory)-e.params.ContextTurns:]
	}
	e.speak(nil, reply, domain.ToneFriendly)
}

// ─────────────────────────────────────────────
// Transitions
// ─────────────────────────────────────────────

func (e *Engine) beginTrustedChat(ctx context.Context, name string, at time.Time) {
	e.logEvent(ctx, "trusted_entry", name)
	e.emit(domain.Action{Type: domain.ActionSnapshotRequest, Label: name, Timestamp: at})
	e.speak(nil, fmt.Sprintf("Welcome back, %s!", name), domain.ToneFriendly)

	e.mode = domain.ModeTrustedChat
	e.chatPartner = name
	e.chatHistory = nil
	e.lastChatAt = at
}

func (e *Engine) endTrustedChat(ctx context.Context) {
	e.logEvent(ctx, "trusted_chat_ended", e.chatPartner)
	e.chatPartner = ""
	e.chatHistory = nil
	e.lastChatAt = time.Time{}
	// Stale votes would instantly re-confirm the person who just left the
	// chat; make them earn a fresh majority.
	e.votes = nil
	e.mode = domain.ModeGuarding
}

// escalate moves the encounter forward. Escalation is monotonic: a request to
// move sideways or backwards is an inconsistent transition and is rejected.
func (e *Engine) escalate(ctx context.Context, to domain.EscalationLevel, reason string) {
	enc := e.enc
	if enc == nil || !enc.Open() || to <= enc.CurrentLevel {
		e.logEvent(ctx, "inconsistent_state", fmt.Sprintf("rejected escalation request to %s", to))
		return
	}
	from := enc.CurrentLevel
	enc.CurrentLevel = to
	enc.LevelEnteredAt = e.now()
	if to == domain.Level3Interrogation {
		e.exchangesAtL3 = 0
	}
	e.logEvent(ctx, "escalated", fmt.Sprintf("%s -> %s: %s", from, to, reason))
}

func (e *Engine) grantAccess(ctx context.Context, reason string) {
	enc := e.enc
	label := enc.ClaimedIdentity
	if label == "" {
		label = "visitor"
	}
	e.logEvent(ctx, "intruder_accepted", fmt.Sprintf("%s: %s", label, reason))
	e.emit(domain.Action{Type: domain.ActionAccessGranted, EncounterID: enc.ID, Timestamp: e.now()})
	e.closeEncounter(ctx, domain.ResolutionGranted)
}

func (e *Engine) triggerAlarm(ctx context.Context, reason string) {
	enc := e.enc
	if enc == nil || !enc.Open() {
		e.logEvent(ctx, "inconsistent_state", "alarm requested without an open encounter")
		return
	}

	if enc.CurrentLevel < domain.Level4Alarm {
		from := enc.CurrentLevel
		enc.CurrentLevel = domain.Level4Alarm
		enc.LevelEnteredAt = e.now()
		e.logEvent(ctx, "escalated", fmt.Sprintf("%s -> %s: %s", from, domain.Level4Alarm, reason))
	}

	label := "Unknown"
	if enc.ClaimedIdentity != "" {
		label = fmt.Sprintf("Unknown (claimed %s)", enc.ClaimedIdentity)
	}

	e.speak(enc, "ALARM! ALARM! Security breach! Authorities notified! Leave immediately!", domain.ToneAlert)
	e.emit(domain.Action{Type: domain.ActionAlarm, EncounterID: enc.ID, Timestamp: e.now()})
	e.emit(domain.Action{
		Type:        domain.ActionSnapshotRequest,
		Label:       label,
		EncounterID: enc.ID,
		Timestamp:   e.now(),
	})
	e.logEvent(ctx, "alarm", reason)
	e.closeEncounter(ctx, domain.ResolutionAlarm)

	// An alarm disarms the guard: re-arming requires an explicit guard-on.
	e.mode = domain.ModeIdle
	e.logEvent(ctx, "guard_disarmed", "manual re-arm required after alarm")
}

func (e *Engine) closeEncounter(ctx context.Context, res domain.Resolution) {
	enc := e.enc
	if enc == nil || !enc.Open() {
		e.logEvent(ctx, "inconsistent_state", "close requested without an open encounter")
		return
	}
	enc.Resolution = res
	enc.ResolvedAt = e.now()
	e.logEvent(ctx, "encounter_resolved", string(res))

	if err := e.archive.Archive(ctx, enc); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to archive encounter", "error", err)
	}

	e.enc = nil
	e.window = nil
	e.lastVerdict = domain.IdentityVerdict{}
	e.exchanges = 0
	e.exchangesAtL3 = 0
	e.cooperative = 0
	e.evasiveStreak = 0
	e.claimAccepted = false
	e.grantSuppressed = false
}

// ─────────────────────────────────────────────
// Effects
// ─────────────────────────────────────────────

func (e *Engine) speak(enc *domain.Encounter, text string, tone domain.SpeechTone) {
	if text == "" {
		return
	}
	action := domain.Action{
		Type:      domain.ActionSpeak,
		Text:      text,
		Tone:      tone,
		Timestamp: e.now(),
	}
	if enc != nil {
		action.EncounterID = enc.ID
		action.Level = enc.CurrentLevel
		action.LevelName = enc.CurrentLevel.String()
		enc.AppendTurn(domain.RoleGuard, text, action.Timestamp)
		if e.window != nil {
			e.window.Append(domain.TranscriptTurn{Speaker: domain.RoleGuard, Text: text, Timestamp: action.Timestamp})
		}
	}
	e.emit(action)
}

func (e *Engine) emit(action domain.Action) {
	if action.LevelName == "" && action.EncounterID != "" {
		action.LevelName = action.Level.String()
	}
	if e.actions != nil {
		e.actions.Emit(action)
	}
}

func (e *Engine) logEvent(ctx context.Context, eventType, detail string) {
	ev := domain.GuardEvent{
		Timestamp: e.now(),
		Type:      eventType,
		Detail:    detail,
	}
	if e.enc != nil {
		ev.EncounterID = e.enc.ID
		ev.Level = e.enc.CurrentLevel
	}
	if err := e.events.Append(ctx, ev); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to append guard event", "error", err, "event_type", eventType)
	}
	observability.LoggerFromContext(ctx).Info("guard event", "event_type", eventType, "detail", detail)
}

// Encounter returns the open encounter if it matches id, or looks it up in
// the archive. Safe to call from any goroutine.
func (e *Engine) Encounter(ctx context.Context, id domain.EncounterID) (*domain.Encounter, error) {
	if snapshot, ok := e.session.EncounterSnapshot(id); ok {
		return snapshot, nil
	}
	return e.archive.GetEncounter(ctx, id)
}
