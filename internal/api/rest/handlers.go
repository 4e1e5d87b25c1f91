package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/advancement-engine/internal/authority"
	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/engine"
	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
	"github.com/louisbranch/advancement-engine/internal/storage"
)

// createCharacterHandler returns a handler that persists a new character
// document.
// POST /api/v1/characters
func createCharacterHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input authority.CreateInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		record, err := eng.CreateCharacter(r.Context(), input)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	}
}

// getCharacterHandler returns a handler that fetches one character document.
// GET /api/v1/characters/{characterID}
func getCharacterHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := eng.GetCharacter(r.Context(), chi.URLParam(r, "characterID"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

// checkEligibilityHandler returns a handler that evaluates one entity
// against one character.
// GET /api/v1/characters/{characterID}/eligibility/{entityID}
func checkEligibilityHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		characterID := chi.URLParam(r, "characterID")
		entityID := chi.URLParam(r, "entityID")

		report, err := eng.CheckEligibility(r.Context(), characterID, entityID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// getSuggestionsHandler returns a handler that ranks unowned entities.
// GET /api/v1/characters/{characterID}/suggestions?kind=TALENT&kind=SKILL&owner=blade-arts
func getSuggestionsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		characterID := chi.URLParam(r, "characterID")

		filter := engine.SuggestionFilter{OwnerID: r.URL.Query().Get("owner")}
		for _, raw := range r.URL.Query()["kind"] {
			kind, ok := character.ParseKind(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid kind filter %q", raw))
				return
			}
			filter.Kinds = append(filter.Kinds, kind)
		}

		report, err := eng.GetSuggestions(r.Context(), characterID, filter)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// mutationRequest is the POST body for mutation submissions.
type mutationRequest struct {
	Batch character.Batch `json:"batch"`
	Mode  string          `json:"mode,omitempty"`
}

// submitMutationHandler returns a handler that routes one batch through the
// mutation authority.
// POST /api/v1/characters/{characterID}/mutations
func submitMutationHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		characterID := chi.URLParam(r, "characterID")

		var req mutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		mode, err := authority.ParseMode(req.Mode)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		outcome, err := eng.SubmitMutation(r.Context(), characterID, req.Batch, mode)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		status := http.StatusOK
		if outcome.State == authority.StateBlocked {
			status = http.StatusConflict
		}
		writeJSON(w, status, outcome)
	}
}

// proposeRepairsHandler returns a handler that analyzes one character's
// integrity violations.
// GET /api/v1/characters/{characterID}/repairs
func proposeRepairsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		characterID := chi.URLParam(r, "characterID")

		proposals, err := eng.ProposeRepairs(r.Context(), characterID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"character_id": characterID,
			"proposals":    proposals,
		})
	}
}

// sweepRequest is the POST body for integrity sweeps.
type sweepRequest struct {
	CharacterIDs []string `json:"character_ids,omitempty"`
}

// runSweepHandler returns a handler that sweeps stored characters.
// POST /api/v1/integrity/sweep
func runSweepHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sweepRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
		}

		report, err := eng.RunIntegritySweep(r.Context(), req.CharacterIDs)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// writeEngineError maps engine errors onto HTTP statuses via their codes.
func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "character not found")
		return
	}
	code := apperrors.CodeOf(err)
	message := err.Error()
	if code == apperrors.CodeUnknown {
		message = "internal error"
	}
	writeJSON(w, code.HTTPStatus(), map[string]string{
		"error": message,
		"code":  string(code),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
