package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"awards-api/internal/domain"
	"awards-api/internal/service"
	apperrors "awards-api/pkg/errors"

	"github.com/go-chi/chi/v5"
)

// NominationHandler exposes the nomination lifecycle over HTTP.
type NominationHandler struct {
	nominationService *service.NominationService
	votingService     *service.VotingService
}

// NewNominationHandler creates a new nomination handler
func NewNominationHandler(nominationService *service.NominationService, votingService *service.VotingService) *NominationHandler {
	return &NominationHandler{
		nominationService: nominationService,
		votingService:     votingService,
	}
}

// Submit handles POST /api/nominations
func (h *NominationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitNominationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	result, err := h.nominationService.Submit(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		// Merged into an existing nomination; nothing new was created.
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

// Get handles GET /api/nominations/{id}
func (h *NominationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, apperrors.NewValidationError("Nomination ID is required", nil))
		return
	}

	detail, err := h.nominationService.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	totals, err := h.votingService.TotalVotes(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		*domain.NominationDetail
		TotalVotes int `json:"total_votes"`
	}{detail, totals.Total})
}

// List handles GET /api/admin/nominations
func (h *NominationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.NominationFilter{
		State:         domain.NominationState(r.URL.Query().Get("state")),
		SubcategoryID: queryInt(r, "subcategory_id"),
		Limit:         queryInt(r, "limit"),
	}

	nominations, err := h.nominationService.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"nominations": nominations})
}

// CreateDraft handles POST /api/admin/nominations
func (h *NominationHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		domain.SubmitNominationRequest
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	source := domain.NominationSource(req.Source)
	if source == "" {
		source = domain.SourceAdmin
	}

	result, err := h.nominationService.CreateDraft(r.Context(), &req.SubmitNominationRequest, source)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// Approve handles POST /api/admin/nominations/{id}/approve
func (h *NominationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	nomination, err := h.nominationService.Approve(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nomination)
}

// Reject handles POST /api/admin/nominations/{id}/reject
func (h *NominationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	nomination, err := h.nominationService.Reject(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nomination)
}

// queryInt parses an integer query parameter, returning 0 when absent or
// malformed
func queryInt(r *http.Request, name string) int {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
