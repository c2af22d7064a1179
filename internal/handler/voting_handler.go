package handler

import (
	"encoding/json"
	"net/http"

	"awards-api/internal/domain"
	"awards-api/internal/service"
	apperrors "awards-api/pkg/errors"

	"github.com/go-chi/chi/v5"
)

// VotingHandler exposes vote casting and the admin vote adjustment.
type VotingHandler struct {
	votingService *service.VotingService
}

// NewVotingHandler creates a new voting handler
func NewVotingHandler(votingService *service.VotingService) *VotingHandler {
	return &VotingHandler{
		votingService: votingService,
	}
}

// CastVote handles POST /api/votes
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req domain.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	response, err := h.votingService.CastVote(r.Context(), &req)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, response)
}

// GetTotals handles GET /api/nominations/{id}/votes
func (h *VotingHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, apperrors.NewValidationError("Nomination ID is required", nil))
		return
	}

	totals, err := h.votingService.TotalVotes(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, totals)
}

// AdjustVotes handles PUT /api/admin/nominations/{id}/votes
func (h *VotingHandler) AdjustVotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		AdditionalVotes int `json:"additional_votes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.NewValidationError("Invalid request body", nil))
		return
	}

	totals, err := h.votingService.AdjustVotes(r.Context(), id, req.AdditionalVotes)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, totals)
}

// Reconcile handles POST /api/admin/reconcile
func (h *VotingHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	fixed, err := h.votingService.ReconcileVoteCounts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"fixed": fixed})
}
