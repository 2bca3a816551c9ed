package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/pgkim42/ticket-queue/internal/auth"
	"github.com/pgkim42/ticket-queue/internal/domain/event"
	"github.com/pgkim42/ticket-queue/internal/domain/queue"
	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/domain/user"
	"github.com/pgkim42/ticket-queue/internal/events"
	"github.com/pgkim42/ticket-queue/internal/payment"
	"github.com/pgkim42/ticket-queue/internal/queueing"
)

// ErrorResponse is the wire shape of every error.
type ErrorResponse struct {
	StatusCode int       `json:"statusCode"`
	Message    string    `json:"message"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	Path       string    `json:"path"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
		Timestamp:  time.Now().UTC(),
		Path:       r.URL.Path,
	})
}

// renderDomainError maps domain sentinels onto the error taxonomy:
// 400 validation, 401 authentication, 403 authorization, 404 not-found,
// 500 otherwise.
func renderDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, event.ErrNotFound),
		errors.Is(err, reservation.ErrNotFound),
		errors.Is(err, queue.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		renderError(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, queueing.ErrSalesNotStarted),
		errors.Is(err, queueing.ErrSalesEnded),
		errors.Is(err, payment.ErrWindowElapsed),
		errors.Is(err, payment.ErrAlreadyFinal),
		errors.Is(err, events.ErrInvalidSeats),
		errors.Is(err, events.ErrInvalidWindow):
		renderError(w, r, http.StatusBadRequest, err.Error())

	case errors.Is(err, payment.ErrWrongOwner):
		renderError(w, r, http.StatusForbidden, err.Error())

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		renderError(w, r, http.StatusUnauthorized, err.Error())

	default:
		renderError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
