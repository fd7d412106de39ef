package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/crm-assistant/internal/assistant"
	"github.com/thebtf/crm-assistant/internal/privacy"
	"github.com/thebtf/crm-assistant/internal/server/sse"
	"github.com/thebtf/crm-assistant/pkg/models"
)

// queryRequest is the body of both query endpoints.
// user_id is checked by the assistant so streams can report it as an event.
type queryRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query" validate:"required,max=2000"`
}

type userDataResponse struct {
	UserID   string           `json:"user_id"`
	Contacts []models.Contact `json:"contacts"`
	Notes    []models.Note    `json:"notes"`
	Summary  userDataSummary  `json:"summary"`
}

type userDataSummary struct {
	TotalContacts int `json:"total_contacts"`
	TotalNotes    int `json:"total_notes"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

func (s *Service) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "CRM AI Backend is running!"})
}

// handleHealth reports database reachability. It always answers 200 so the
// body can say what is wrong.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthTimeout)
	defer cancel()

	status, database := "healthy", "connected"
	if err := s.db.Ping(ctx); err != nil {
		logger(r.Context()).Warn().Err(err).Msg("Health check: database unreachable")
		status, database = "unhealthy", "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": database,
		"version":  s.opts.Version,
	})
}

// decodeQuery reads and checks a query body, writing the error response itself.
func (s *Service) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return req, false
	}
	if err := privacy.ValidateQuerySafety(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	req.Query = privacy.SanitizeInput(req.Query, privacy.MaxQueryLength)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	return req, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func (s *Service) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	res := s.assistant.Ask(r.Context(), req.UserID, req.Query)
	if !res.Success {
		if res.Kind == assistant.KindValidation {
			writeError(w, http.StatusBadRequest, res.Error)
			return
		}
		logger(r.Context()).Error().Str("user_id", req.UserID).Str("kind", string(res.Kind)).Str("error", res.Error).Msg("AI query failed")
		writeError(w, http.StatusInternalServerError, "AI processing failed: "+res.Error)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	sw, err := sse.NewWriter(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for event := range s.assistant.Stream(r.Context(), req.UserID, req.Query) {
		if err := sw.Send(string(event.Type), event.Payload()); err != nil {
			logger(r.Context()).Debug().Err(err).Int("sent", sw.Sent()).Msg("Stream client went away")
			return
		}
	}
}

func (s *Service) handleTestModel(w http.ResponseWriter, r *http.Request) {
	ok, response := s.assistant.TestConnection(r.Context())
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Ollama connection failed: "+response)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "success",
		"message":       "Ollama is working",
		"test_response": response,
	})
}

func (s *Service) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	msg := "No conversation memory found for user " + userID
	if s.assistant.ClearMemory(userID) {
		msg = "Conversation memory cleared for user " + userID
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Service) handleUserData(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	data, err := s.assistant.FetchUserData(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error fetching user data: "+err.Error())
		return
	}

	resp := userDataResponse{
		UserID:   userID,
		Contacts: data.Contacts,
		Notes:    data.Notes,
	}
	if resp.Contacts == nil {
		resp.Contacts = []models.Contact{}
	}
	if resp.Notes == nil {
		resp.Notes = []models.Note{}
	}
	resp.Summary = userDataSummary{TotalContacts: len(resp.Contacts), TotalNotes: len(resp.Notes)}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleTestStreaming(w http.ResponseWriter, r *http.Request) {
	sw, err := sse.NewWriter(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for fragment, err := range s.assistant.StreamProbe(r.Context()) {
		if err != nil {
			logger(r.Context()).Warn().Err(err).Msg("Streaming test failed")
			_ = sw.Send("error", map[string]string{"error": err.Error()})
			return
		}
		if sw.Send("token", map[string]string{"token": fragment}) != nil {
			return
		}
	}
}
