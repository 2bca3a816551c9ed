package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/events"
)

// listEvents handles GET /events.
//
//	@Summary	List events with live remaining seats
//	@Tags		events
//	@Produce	json
//	@Success	200	{array}	eventResponse
//	@Router		/events [get]
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.events.List(r.Context())
	if err != nil {
		renderDomainError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toEventResponse(s))
	}
	render.JSON(w, r, out)
}

// getEvent handles GET /events/:id.
//
//	@Summary	Event detail with live remaining seats
//	@Tags		events
//	@Produce	json
//	@Param		id	path		string	true	"event id"
//	@Success	200	{object}	eventResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/events/{id} [get]
func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	summary, err := h.events.GetSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderDomainError(w, r, err)
		return
	}
	render.JSON(w, r, toEventResponse(summary))
}

// createEvent handles POST /admin/events.
//
//	@Summary	Create an event and initialize its seat pool
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Param		body	body		createEventRequest	true	"event"
//	@Success	201		{object}	eventResponse
//	@Failure	400		{object}	ErrorResponse
//	@Security	Bearer
//	@Router		/admin/events [post]
func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" {
		renderError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.events.Create(r.Context(), events.CreateRequest{
		Name:         req.Name,
		TotalSeats:   req.TotalSeats,
		SalesStartAt: req.SalesStartAt,
		SalesEndAt:   req.SalesEndAt,
	})
	if err != nil {
		renderDomainError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toEventResponse(events.Summary{
		Event:          created,
		RemainingSeats: int64(created.TotalSeats),
	}))
}

// eventStats handles GET /admin/events/:id/stats.
//
//	@Summary	Queue and reservation statistics for one event
//	@Tags		admin
//	@Produce	json
//	@Param		id	path		string	true	"event id"
//	@Success	200	{object}	statsResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	Bearer
//	@Router		/admin/events/{id}/stats [get]
func (h *Handler) eventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.events.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderDomainError(w, r, err)
		return
	}
	// Every reported status is present, zero or not.
	counts := map[string]int{
		string(reservation.StatusPendingPayment): 0,
		string(reservation.StatusPaid):           0,
		string(reservation.StatusExpired):        0,
	}
	for status, n := range stats.ReservationCounts {
		counts[string(status)] = n
	}
	render.JSON(w, r, statsResponse{
		EventID:           stats.EventID,
		RemainingSeats:    stats.RemainingSeats,
		QueueLength:       stats.QueueLength,
		ReservationCounts: counts,
	})
}
