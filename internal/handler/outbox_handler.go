package handler

import (
	"net/http"

	"awards-api/internal/domain"
	"awards-api/internal/service"

	"github.com/go-chi/chi/v5"
)

// OutboxHandler exposes the operator surface of the sync outbox.
type OutboxHandler struct {
	dispatcher service.OutboxDispatcher
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(dispatcher service.OutboxDispatcher) *OutboxHandler {
	return &OutboxHandler{
		dispatcher: dispatcher,
	}
}

// Dispatch handles POST /api/admin/outbox/dispatch, running one dispatch
// pass on demand
func (h *OutboxHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	report, err := h.dispatcher.RunOnce(r.Context(), queryInt(r, "limit"))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Status handles GET /api/admin/outbox
func (h *OutboxHandler) Status(w http.ResponseWriter, r *http.Request) {
	filter := domain.OutboxFilter{
		Status:    domain.OutboxStatus(r.URL.Query().Get("status")),
		EventType: domain.EventType(r.URL.Query().Get("event_type")),
		Target:    domain.SyncTarget(r.URL.Query().Get("target")),
		Limit:     queryInt(r, "limit"),
	}

	report, err := h.dispatcher.Status(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Retry handles POST /api/admin/outbox/{id}/retry, replaying a dead entry
func (h *OutboxHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dispatcher.Retry(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}
