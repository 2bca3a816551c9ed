package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// payReservation handles POST /reservations/:id/pay.
//
//	@Summary	Pay a pending reservation before its deadline
//	@Tags		reservations
//	@Produce	json
//	@Param		id	path		string	true	"reservation id"
//	@Success	200	{object}	reservationResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	Bearer
//	@Router		/reservations/{id}/pay [post]
func (h *Handler) payReservation(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	paid, err := h.payment.Pay(r.Context(), chi.URLParam(r, "id"), claims.Subject)
	if err != nil {
		renderDomainError(w, r, err)
		return
	}
	render.JSON(w, r, toReservationResponse(paid))
}
