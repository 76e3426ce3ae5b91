package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/guard-agent/internal/app/enroll"
	"github.com/PabloGalante/guard-agent/internal/app/guard"
	"github.com/PabloGalante/guard-agent/internal/domain"
)

// Server is the ingestion and inspection surface for the external
// collaborators (vision, speech, renderer, monitors). Collaborator pushes are
// translated into engine events; reads are served from published snapshots.
type Server struct {
	engine *guard.Engine
	enroll *enroll.Service
	hub    *Hub
	now    func() time.Time
}

func NewServer(engine *guard.Engine, enrollSvc *enroll.Service, hub *Hub) http.Handler {
	s := &Server{
		engine: engine,
		enroll: enrollSvc,
		hub:    hub,
		now:    time.Now,
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)

	// Collaborator pushes.
	mux.HandleFunc("/observations", s.handleObservations)
	mux.HandleFunc("/transcripts", s.handleTranscripts)
	mux.HandleFunc("/commands", s.handleCommands)
	mux.HandleFunc("/enrollments", s.handleEnrollments)

	// /encounters/{id} → GET: open or archived encounter
	mux.HandleFunc("/encounters/", s.handleEncounterWithID)

	// /stream → websocket feed of outbound actions
	if hub != nil {
		mux.Handle("/stream", hub)
	}

	return chainMiddlewares(mux, withRequestID, withLogging, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type observationRequest struct {
	Embedding []float64 `json:"embedding,omitempty"`
	FaceLost  bool      `json:"face_lost,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type transcriptRequest struct {
	Text      string    `json:"text"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type commandRequest struct {
	Command string `json:"command"`
}

type enrollmentRequest struct {
	Name       string      `json:"name"`
	Embeddings [][]float64 `json:"embeddings"`
}

type enrollmentResponse struct {
	Name       string    `json:"name"`
	Embeddings int       `json:"embeddings"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type statusResponse struct {
	Mode             string `json:"mode"`
	EncounterID      string `json:"encounter_id,omitempty"`
	Level            string `json:"level,omitempty"`
	CooperationScore int    `json:"cooperation_score"`
	ClaimedIdentity  string `json:"claimed_identity,omitempty"`
}

type transcriptTurnResponse struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type encounterResponse struct {
	ID               string                   `json:"id"`
	StartTime        time.Time                `json:"start_time"`
	Level            string                   `json:"level"`
	ClaimedIdentity  string                   `json:"claimed_identity,omitempty"`
	VisionIdentity   string                   `json:"vision_identity,omitempty"`
	CooperationScore int                      `json:"cooperation_score"`
	Transcript       []transcriptTurnResponse `json:"transcript"`
	Resolution       string                   `json:"resolution,omitempty"`
	ResolvedAt       *time.Time               `json:"resolved_at,omitempty"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	status := s.engine.Session().Snapshot()
	resp := statusResponse{
		Mode:             string(status.Mode),
		CooperationScore: status.CooperationScore,
		ClaimedIdentity:  status.ClaimedIdentity,
	}
	if status.EncounterID != "" {
		resp.EncounterID = string(status.EncounterID)
		resp.Level = status.Level.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req observationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	at := req.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	if req.FaceLost {
		s.engine.EnqueueFaceLost(at)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	if len(req.Embedding) == 0 {
		badRequest(w, "embedding is required unless face_lost is set")
		return
	}

	s.engine.EnqueueObservation(domain.FaceObservation{
		Embedding: req.Embedding,
		Timestamp: at,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	at := req.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	if req.Failed {
		s.engine.EnqueueSpeechFailure(at)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required unless failed is set")
		return
	}

	s.engine.EnqueueTranscript(req.Text, at)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	cmd, ok := parseVoiceCommand(req.Command)
	if !ok {
		// Unrecognized control phrases are dropped, not errors.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	s.engine.EnqueueCommand(cmd, s.now())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleEnrollments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req enrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	// The roster must not change while the guard is watching or chatting.
	mode := s.engine.Session().Snapshot().Mode
	if mode == domain.ModeGuarding || mode == domain.ModeTrustedChat {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "cannot enroll while guard mode is active",
		})
		return
	}

	identity, err := s.enroll.Commit(r.Context(), req.Name, req.Embeddings)
	if err != nil {
		switch {
		case errors.Is(err, enroll.ErrEmptyName),
			errors.Is(err, enroll.ErrNoEmbeddings),
			errors.Is(err, enroll.ErrRaggedVectors):
			badRequest(w, err.Error())
		default:
			internalError(w, err)
		}
		return
	}

	s.engine.EnqueueEnrollmentDone(identity.Name, s.now())

	writeJSON(w, http.StatusCreated, enrollmentResponse{
		Name:       identity.Name,
		Embeddings: len(identity.Embeddings),
		EnrolledAt: identity.EnrolledAt,
	})
}

// /encounters/{id}
func (s *Server) handleEncounterWithID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/encounters/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	enc, err := s.engine.Encounter(r.Context(), domain.EncounterID(id))
	if err != nil {
		if errors.Is(err, domain.ErrEncounterNotFound) {
			http.NotFound(w, r)
			return
		}
		internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEncounterResponse(enc))
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func toEncounterResponse(enc *domain.Encounter) encounterResponse {
	transcript := make([]transcriptTurnResponse, 0, len(enc.Transcript))
	for _, turn := range enc.Transcript {
		transcript = append(transcript, transcriptTurnResponse{
			Speaker:   string(turn.Speaker),
			Text:      turn.Text,
			Timestamp: turn.Timestamp,
		})
	}

	resp := encounterResponse{
		ID:               string(enc.ID),
		StartTime:        enc.StartTime,
		Level:            enc.CurrentLevel.String(),
		ClaimedIdentity:  enc.ClaimedIdentity,
		VisionIdentity:   enc.VisionIdentity,
		CooperationScore: enc.CooperationScore,
		Transcript:       transcript,
		Resolution:       string(enc.Resolution),
	}
	if !enc.ResolvedAt.IsZero() {
		t := enc.ResolvedAt
		resp.ResolvedAt = &t
	}
	return resp
}

func parseVoiceCommand(s string) (domain.VoiceCommand, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enroll", "enrollment":
		return domain.CommandEnroll, true
	case "guard_on", "guard on":
		return domain.CommandGuardOn, true
	case "guard_off", "guard off":
		return domain.CommandGuardOff, true
	case "bye", "goodbye":
		return domain.CommandBye, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
