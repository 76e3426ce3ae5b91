package guard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/guard-agent/internal/adapters/llm"
	memstore "github.com/PabloGalante/guard-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/guard-agent/internal/app/chat"
	"github.com/PabloGalante/guard-agent/internal/app/interrogate"
	"github.com/PabloGalante/guard-agent/internal/app/resolve"
	"github.com/PabloGalante/guard-agent/internal/domain"
)

// fakeClock drives every engine timestamp in tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// actionRecorder captures everything the engine emits.
type actionRecorder struct {
	actions []domain.Action
}

func (r *actionRecorder) Emit(action domain.Action) {
	r.actions = append(r.actions, action)
}

func (r *actionRecorder) spoken() []string {
	var out []string
	for _, a := range r.actions {
		if a.Type == domain.ActionSpeak {
			out = append(out, a.Text)
		}
	}
	return out
}

func (r *actionRecorder) lastSpoken() string {
	spoken := r.spoken()
	if len(spoken) == 0 {
		return ""
	}
	return spoken[len(spoken)-1]
}

func (r *actionRecorder) has(typ domain.ActionType) bool {
	for _, a := range r.actions {
		if a.Type == typ {
			return true
		}
	}
	return false
}

type testRig struct {
	engine  *Engine
	clock   *fakeClock
	sink    *actionRecorder
	mock    *llm.MockLLM
	archive *memstore.EncounterStore
	events  *memstore.EventLog
}

func newTestRig(t *testing.T, params Params) *testRig {
	t.Helper()

	clock := newFakeClock()
	sink := &actionRecorder{}
	mock := llm.NewMockLLM()

	roster := memstore.NewRosterStore()
	require.NoError(t, roster.CommitIdentity(context.Background(), &domain.TrustedIdentity{
		Name:       "Alice",
		Embeddings: [][]float64{{0, 0, 0}},
		EnrolledAt: clock.Now(),
	}))

	archive := memstore.NewEncounterStore()
	events := memstore.NewEventLog()

	engine := NewEngine(params, Deps{
		Resolver: resolve.New(0.4),
		Policy:   interrogate.New(mock, time.Second),
		Chat:     chat.NewService(mock, events, time.Second),
		Roster:   roster,
		Archive:  archive,
		Events:   events,
		Actions:  sink,
		Now:      clock.Now,
	})

	return &testRig{
		engine:  engine,
		clock:   clock,
		sink:    sink,
		mock:    mock,
		archive: archive,
		events:  events,
	}
}

func (rig *testRig) handle(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = rig.clock.Now()
	}
	rig.engine.Handle(context.Background(), ev)
}

func (rig *testRig) command(cmd domain.VoiceCommand) {
	rig.handle(domain.Event{Type: domain.EventCommand, Command: cmd})
}

func (rig *testRig) observe(embedding []float64) {
	rig.handle(domain.Event{
		Type:        domain.EventFaceObserved,
		Observation: &domain.FaceObservation{Embedding: embedding, Timestamp: rig.clock.Now()},
	})
}

// observeTrusted sends enough matching frames for the recognition vote
// window (default 5, majority 3) to confirm the identity.
func (rig *testRig) observeTrusted(embedding []float64) {
	for i := 0; i < 3; i++ {
		rig.observe(embedding)
	}
}

func (rig *testRig) say(text string) {
	rig.handle(domain.Event{
		Type:       domain.EventSpeechHeard,
		Transcript: &domain.TranscriptEvent{Text: text, Timestamp: rig.clock.Now()},
	})
}

func (rig *testRig) tick() {
	rig.handle(domain.Event{Type: domain.EventTick})
}

func (rig *testRig) status() Status {
	return rig.engine.Session().Snapshot()
}

var (
	aliceFace   = []float64{0, 0, 0.1}
	unknownFace = []float64{5, 5, 5}
)

// guardOn activates guard mode against the single-entry test roster.
func (rig *testRig) guardOn(t *testing.T) {
	t.Helper()
	rig.command(domain.CommandGuardOn)
	require.Equal(t, domain.ModeGuarding, rig.status().Mode)
}

// openInquiry drives an unknown face past the debounce window into level 1.
func (rig *testRig) openInquiry(t *testing.T) domain.EncounterID {
	t.Helper()
	rig.observe(unknownFace)
	require.Equal(t, domain.LevelMonitoring, rig.status().Level)

	rig.clock.Advance(3 * time.Second)
	rig.observe(unknownFace)
	require.Equal(t, domain.Level1Inquiry, rig.status().Level)
	return rig.status().EncounterID
}

// verdict builds a policy reply in the structured format.
func verdict(responseType, decision, reply string) string {
	return "RESPONSE_TYPE: " + responseType + "\nESCALATION_DECISION: " + decision + "\nNEXT_RESPONSE: " + reply
}

// ─────────────────────────────────────────────
// Mode transitions
// ─────────────────────────────────────────────

func TestGuardOnRequiresEnrolledRoster(t *testing.T) {
	rig := newTestRig(t, Params{})

	// Fresh engine with an empty roster.
	emptyRoster := memstore.NewRosterStore()
	rig.engine.roster = emptyRoster

	rig.command(domain.CommandGuardOn)

	assert.Equal(t, domain.ModeIdle, rig.status().Mode)
	assert.Contains(t, rig.sink.lastSpoken(), "No trusted persons enrolled")
}

func TestGuardOnAndOff(t *testing.T) {
	rig := newTestRig(t, Params{})

	rig.guardOn(t)
	assert.Contains(t, rig.sink.lastSpoken(), "Guard mode activated")

	rig.command(domain.CommandGuardOff)
	assert.Equal(t, domain.ModeIdle, rig.status().Mode)
}

func TestGuardOffAbortsOpenEncounter(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	id := rig.openInquiry(t)

	rig.command(domain.CommandGuardOff)

	assert.Equal(t, domain.ModeIdle, rig.status().Mode)
	assert.False(t, rig.sink.has(domain.ActionAlarm))
	assert.False(t, rig.sink.has(domain.ActionAccessGranted))

	enc, err := rig.archive.GetEncounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionAborted, enc.Resolution)
}

func TestEnrollmentFlow(t *testing.T) {
	rig := newTestRig(t, Params{})

	rig.command(domain.CommandEnroll)
	assert.Equal(t, domain.ModeEnrolling, rig.status().Mode)

	rig.handle(domain.Event{Type: domain.EventEnrollmentDone, Enrolled: "Bob"})
	assert.Equal(t, domain.ModeIdle, rig.status().Mode)
}

func TestEnrollmentCommittedFromIdleCompletesCleanly(t *testing.T) {
	rig := newTestRig(t, Params{})

	// The HTTP wizard commits without the voice flow ever entering
	// enrolling mode.
	rig.handle(domain.Event{Type: domain.EventEnrollmentDone, Enrolled: "Bob"})

	assert.Equal(t, domain.ModeIdle, rig.status().Mode)
	assert.Contains(t, rig.sink.lastSpoken(), "Welcome aboard, Bob")

	events, err := rig.events.Recent(context.Background(), 10)
	require.NoError(t, err)
	for _, ev := range events {
		assert.NotEqual(t, "inconsistent_state", ev.Type)
	}
}

func TestEnrollRefusedWhileGuarding(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)

	rig.command(domain.CommandEnroll)

	assert.Equal(t, domain.ModeGuarding, rig.status().Mode)
	assert.Contains(t, rig.sink.lastSpoken(), "Cannot enroll")
}

// ─────────────────────────────────────────────
// Trusted entry and chat
// ─────────────────────────────────────────────

func TestTrustedFaceStartsChat(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)

	rig.observeTrusted(aliceFace)

	assert.Equal(t, domain.ModeTrustedChat, rig.status().Mode)
	assert.Contains(t, rig.sink.lastSpoken(), "Welcome back, Alice")
	assert.True(t, rig.sink.has(domain.ActionSnapshotRequest))
}

func TestTrustedChatGoodbyeResumesGuarding(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.observeTrusted(aliceFace)

	rig.say("ok bye now")

	assert.Equal(t, domain.ModeGuarding, rig.status().Mode)
	assert.Contains(t, rig.sink.lastSpoken(), "Resuming monitoring")
}

func TestTrustedChatSilenceTimeout(t *testing.T) {
	rig := newTestRig(t, Params{ChatSilenceTimeout: 30 * time.Second})
	rig.guardOn(t)
	rig.observeTrusted(aliceFace)

	rig.clock.Advance(31 * time.Second)
	rig.tick()

	assert.Equal(t, domain.ModeGuarding, rig.status().Mode)
}

func TestSingleTrustedFrameDoesNotResolveEncounter(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.openInquiry(t)

	// One matching frame in a stream of unknowns is treated as a misread.
	rig.observe(aliceFace)

	assert.Equal(t, domain.ModeGuarding, rig.status().Mode)
	assert.Equal(t, domain.Level1Inquiry, rig.status().Level)
	assert.False(t, rig.sink.has(domain.ActionAccessGranted))

	// Sustained recognition confirms the identity and grants.
	rig.observe(aliceFace)
	rig.observe(aliceFace)

	assert.True(t, rig.sink.has(domain.ActionAccessGranted))
	assert.Equal(t, domain.ModeTrustedChat, rig.status().Mode)
}

// ─────────────────────────────────────────────
// Escalation
// ─────────────────────────────────────────────

func TestUnknownFaceDebounces(t *testing.T) {
	rig := newTestRig(t, Params{DebounceWindow: 2 * time.Second})
	rig.guardOn(t)

	spokenBefore := len(rig.sink.spoken())
	rig.observe(unknownFace)

	// Within the debounce window nothing is said.
	assert.Equal(t, domain.LevelMonitoring, rig.status().Level)
	assert.Len(t, rig.sink.spoken(), spokenBefore)

	rig.clock.Advance(3 * time.Second)
	rig.observe(unknownFace)

	assert.Equal(t, domain.Level1Inquiry, rig.status().Level)
	assert.True(t, rig.sink.has(domain.ActionSnapshotRequest))
	assert.NotEmpty(t, rig.sink.lastSpoken(), "inquiry must open with a greeting")
}

func TestLevelTimersForceEscalationToAlarm(t *testing.T) {
	rig := newTestRig(t, Params{
		Level1Timeout: 30 * time.Second,
		Level2Timeout: 20 * time.Second,
		Level3Timeout: 45 * time.Second,
	})
	rig.guardOn(t)
	id := rig.openInquiry(t)

	rig.clock.Advance(31 * time.Second)
	rig.tick()
	assert.Equal(t, domain.Level2Warning, rig.status().Level)

	rig.clock.Advance(21 * time.Second)
	rig.tick()
	assert.Equal(t, domain.Level3Interrogation, rig.status().Level)

	rig.clock.Advance(46 * time.Second)
	rig.tick()

	assert.True(t, rig.sink.has(domain.ActionAlarm))
	assert.Equal(t, domain.ModeIdle, rig.status().Mode, "alarm must disarm the guard")

	enc, err := rig.archive.GetEncounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionAlarm, enc.Resolution)
	assert.Equal(t, domain.Level4Alarm, enc.CurrentLevel)
}

func TestAlarmSpeaksWarning(t *testing.T) {
	rig := newTestRig(t, Params{Level3Timeout: 45 * time.Second})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.clock.Advance(time.Minute)
	rig.tick() // L1 -> L2
	rig.clock.Advance(time.Minute)
	rig.tick() // L2 -> L3
	rig.clock.Advance(time.Minute)
	rig.tick() // L3 -> alarm

	var alarmText string
	for _, text := range rig.sink.spoken() {
		if strings.Contains(text, "ALARM") {
			alarmText = text
		}
	}
	assert.Equal(t, "ALARM! ALARM! Security breach! Authorities notified! Leave immediately!", alarmText)
}

// ─────────────────────────────────────────────
// Interrogation outcomes
// ─────────────────────────────────────────────

func TestPolicyAcceptGrantsAccessAtLevel1(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	id := rig.openInquiry(t)

	rig.mock.Script(verdict("COOPERATIVE", "ACCEPT", "Okay, come on in!"))
	rig.say("I'm here to pick up a package for my roommate")

	assert.True(t, rig.sink.has(domain.ActionAccessGranted))
	assert.Equal(t, domain.ModeGuarding, rig.status().Mode)

	enc, err := rig.archive.GetEncounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionGranted, enc.Resolution)
}

func TestPolicyAcceptIgnoredPastLevel1(t *testing.T) {
	rig := newTestRig(t, Params{Level1Timeout: 30 * time.Second})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.clock.Advance(31 * time.Second)
	rig.tick()
	require.Equal(t, domain.Level2Warning, rig.status().Level)

	rig.mock.Script(verdict("COOPERATIVE", "ACCEPT", "Fine, come in"))
	rig.say("please, I was invited by my friend")

	assert.False(t, rig.sink.has(domain.ActionAccessGranted))
	assert.Contains(t, rig.sink.lastSpoken(), "you need to leave now")
	assert.Equal(t, domain.Level2Warning, rig.status().Level)
}

func TestPolicyEscalateMovesOneLevel(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.mock.Script(verdict("HOSTILE", "ESCALATE", "Identify yourself. Now."))
	rig.say("none of your business")

	assert.Equal(t, domain.Level2Warning, rig.status().Level)
	assert.False(t, rig.sink.has(domain.ActionAlarm))
}

func TestPolicyEscalateAtLevel3TriggersAlarm(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.mock.Script(
		verdict("HOSTILE", "ESCALATE", "Last warning."),
		verdict("HOSTILE", "ESCALATE", "That is it."),
		verdict("HOSTILE", "ESCALATE", ""),
	)
	rig.say("get lost")      // L1 -> L2
	rig.say("shut up")       // L2 -> L3
	rig.say("screw you")     // L3 -> alarm

	assert.True(t, rig.sink.has(domain.ActionAlarm))
	assert.Equal(t, domain.ModeIdle, rig.status().Mode)
}

func TestTimeBasedGrantAtLevel1(t *testing.T) {
	rig := newTestRig(t, Params{
		Level1Timeout:       10 * time.Minute,
		GrantMinCooperative: 2,
		GrantMinElapsed:     10 * time.Second,
	})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.mock.Script(
		verdict("COOPERATIVE", "MAINTAIN", "Go on."),
		verdict("COOPERATIVE", "MAINTAIN", "I see."),
	)

	rig.clock.Advance(6 * time.Second)
	rig.say("I'm waiting for my friend who lives here")
	assert.False(t, rig.sink.has(domain.ActionAccessGranted))

	rig.clock.Advance(6 * time.Second)
	rig.say("she told me to wait inside, sorry for the confusion")

	assert.True(t, rig.sink.has(domain.ActionAccessGranted))
	assert.Equal(t, domain.ModeGuarding, rig.status().Mode)
}

func TestTimeBasedGrantReachableAtDefaultParams(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.openInquiry(t)

	// Cooperative answers keep restarting the level 1 timer, so the visitor
	// never gets escalated and eventually clears both grant bounds
	// (5 cooperative exchanges, 60 seconds).
	answers := []string{
		"hi, sorry to startle you, I'm waiting for a friend",
		"she lives here, she asked me to wait inside",
		"we're heading to a concert together tonight",
		"she should be down in a couple of minutes",
		"of course, happy to answer anything you like",
		"thanks for being patient with me, really appreciated",
	}
	for range answers {
		rig.mock.Script(verdict("COOPERATIVE", "MAINTAIN", "Go on."))
	}

	for _, text := range answers {
		rig.clock.Advance(10 * time.Second)
		rig.tick()
		require.False(t, rig.sink.has(domain.ActionAlarm))
		rig.say(text)
	}

	assert.True(t, rig.sink.has(domain.ActionAccessGranted))
	assert.Equal(t, domain.ModeGuarding, rig.status().Mode)
}

func TestLevel3CooperationGate(t *testing.T) {
	rig := newTestRig(t, Params{
		InterrogationExchanges: 2,
		CooperationGate:        1,
	})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.mock.Script(
		verdict("HOSTILE", "ESCALATE", "Explain yourself."),
		verdict("HOSTILE", "ESCALATE", "Final chance."),
		verdict("EVASIVE", "MAINTAIN", "Answer me."),
		verdict("EVASIVE", "MAINTAIN", "Answer me now."),
	)
	rig.say("get lost")  // L1 -> L2
	rig.say("shut up")   // L2 -> L3
	rig.say("whatever")  // L3 exchange 1
	require.False(t, rig.sink.has(domain.ActionAlarm))
	rig.say("nothing")   // L3 exchange 2, score below gate

	assert.True(t, rig.sink.has(domain.ActionAlarm))
}

// ─────────────────────────────────────────────
// Identity claims
// ─────────────────────────────────────────────

func TestUnverifiableClaimSuppressesGrant(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.say("hi, I'm Alice")

	assert.Equal(t, domain.Level2Warning, rig.status().Level)
	assert.Contains(t, rig.sink.lastSpoken(), "very suspicious")
	assert.False(t, rig.sink.has(domain.ActionAlarm))

	// Even a policy ACCEPT can no longer grant access.
	rig.mock.Script(verdict("COOPERATIVE", "ACCEPT", "Fine."))
	rig.say("sorry, I can explain everything")
	assert.False(t, rig.sink.has(domain.ActionAccessGranted))
}

func TestInconsistentClaimTriggersAlarm(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	id := rig.openInquiry(t)

	rig.mock.Script(verdict("COOPERATIVE", "MAINTAIN", "Noted."))
	rig.say("my name is Mallory")
	require.Equal(t, "Mallory", rig.status().ClaimedIdentity)

	// Vision then keeps resolving the face as a trusted person the claim
	// contradicts, until the vote window confirms it.
	rig.observeTrusted(aliceFace)

	assert.True(t, rig.sink.has(domain.ActionAlarm))

	enc, err := rig.archive.GetEncounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionAlarm, enc.Resolution)
}

func TestNameExtractionRecordsClaim(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.openInquiry(t)

	rig.mock.Script(verdict("COOPERATIVE", "MAINTAIN", "Alright."))
	rig.say("hello, I am Mallory and I was invited")

	assert.Equal(t, "Mallory", rig.status().ClaimedIdentity)
}

// ─────────────────────────────────────────────
// Departure
// ─────────────────────────────────────────────

func TestFaceLostDuringDebounceClosesQuietly(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	rig.observe(unknownFace)
	id := rig.status().EncounterID

	spokenBefore := len(rig.sink.spoken())
	rig.handle(domain.Event{Type: domain.EventFaceLost})

	assert.Len(t, rig.sink.spoken(), spokenBefore)

	enc, err := rig.archive.GetEncounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionLeft, enc.Resolution)
}

func TestFaceLostAfterAcceptedClaimGrantsAccess(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	id := rig.openInquiry(t)

	rig.mock.Script(verdict("COOPERATIVE", "MAINTAIN", "Alright."))
	rig.say("I'm Mallory, a friend of Alice")

	rig.handle(domain.Event{Type: domain.EventFaceLost})

	assert.True(t, rig.sink.has(domain.ActionAccessGranted))

	enc, err := rig.archive.GetEncounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionGranted, enc.Resolution)
}

func TestFaceLostAtWarningLevelResolvesLeft(t *testing.T) {
	rig := newTestRig(t, Params{Level1Timeout: 30 * time.Second})
	rig.guardOn(t)
	id := rig.openInquiry(t)

	rig.clock.Advance(31 * time.Second)
	rig.tick()
	require.Equal(t, domain.Level2Warning, rig.status().Level)

	rig.handle(domain.Event{Type: domain.EventFaceLost})

	assert.False(t, rig.sink.has(domain.ActionAlarm))

	enc, err := rig.archive.GetEncounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionLeft, enc.Resolution)
}

// ─────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────

func TestEncounterLookupOpenThenArchived(t *testing.T) {
	rig := newTestRig(t, Params{})
	rig.guardOn(t)
	id := rig.openInquiry(t)

	open, err := rig.engine.Encounter(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, open.Open())

	rig.handle(domain.Event{Type: domain.EventFaceLost})

	archived, err := rig.engine.Encounter(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionLeft, archived.Resolution)

	_, err = rig.engine.Encounter(context.Background(), domain.EncounterID("missing"))
	assert.ErrorIs(t, err, domain.ErrEncounterNotFound)
}
