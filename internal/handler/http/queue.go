package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// joinQueue handles POST /events/:id/queue/join. Idempotent on
// (event, user): a repeat call answers with the existing position.
//
//	@Summary	Join the event's waiting queue
//	@Tags		queue
//	@Produce	json
//	@Param		id	path		string	true	"event id"
//	@Success	200	{object}	joinResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	Bearer
//	@Router		/events/{id}/queue/join [post]
func (h *Handler) joinQueue(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	eventID := chi.URLParam(r, "id")

	result, err := h.queueing.Join(r.Context(), eventID, claims.Subject)
	if err != nil {
		renderDomainError(w, r, err)
		return
	}
	render.JSON(w, r, joinResponse{
		Position: result.Position,
		Status:   string(result.Status),
		EventID:  eventID,
		Message:  fmt.Sprintf("you are number %d in line", result.Position),
	})
}

// myQueueStatus handles GET /events/:id/queue/me — the authoritative view
// clients poll when notifications are missed.
//
//	@Summary	The caller's queue position and status
//	@Tags		queue
//	@Produce	json
//	@Param		id	path		string	true	"event id"
//	@Success	200	{object}	myStatusResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	Bearer
//	@Router		/events/{id}/queue/me [get]
func (h *Handler) myQueueStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	eventID := chi.URLParam(r, "id")

	status, err := h.queueing.Status(r.Context(), eventID, claims.Subject)
	if err != nil {
		renderDomainError(w, r, err)
		return
	}
	render.JSON(w, r, myStatusResponse{
		Position:      status.Position,
		Status:        string(status.Status),
		EventID:       eventID,
		ExpiresAt:     status.ExpiresAt,
		ReservationID: status.ReservationID,
	})
}
