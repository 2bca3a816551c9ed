package http

import (
	"time"

	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/domain/user"
	"github.com/pgkim42/ticket-queue/internal/events"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  user.Role `json:"role"`
}

type loginResponse struct {
	AccessToken string       `json:"accessToken"`
	User        userResponse `json:"user"`
}

type createEventRequest struct {
	Name         string    `json:"name"`
	TotalSeats   int       `json:"totalSeats"`
	SalesStartAt time.Time `json:"salesStartAt"`
	SalesEndAt   time.Time `json:"salesEndAt"`
}

type eventResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TotalSeats     int       `json:"totalSeats"`
	SalesStartAt   time.Time `json:"salesStartAt"`
	SalesEndAt     time.Time `json:"salesEndAt"`
	RemainingSeats int64     `json:"remainingSeats"`
}

func toEventResponse(s events.Summary) eventResponse {
	return eventResponse{
		ID:             s.ID,
		Name:           s.Name,
		TotalSeats:     s.TotalSeats,
		SalesStartAt:   s.SalesStartAt,
		SalesEndAt:     s.SalesEndAt,
		RemainingSeats: s.RemainingSeats,
	}
}

type statsResponse struct {
	EventID           string         `json:"eventId"`
	RemainingSeats    int64          `json:"remainingSeats"`
	QueueLength       int64          `json:"queueLength"`
	ReservationCounts map[string]int `json:"reservationCounts"`
}

type joinResponse struct {
	Position int64  `json:"position"`
	Status   string `json:"status"`
	EventID  string `json:"eventId"`
	Message  string `json:"message"`
}

type myStatusResponse struct {
	Position      int64      `json:"position"`
	Status        string     `json:"status"`
	EventID       string     `json:"eventId"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	ReservationID *string    `json:"reservationId,omitempty"`
}

type reservationResponse struct {
	ID        string     `json:"id"`
	EventID   string     `json:"eventId"`
	UserID    string     `json:"userId"`
	Status    string     `json:"status"`
	ExpiresAt time.Time  `json:"expiresAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toReservationResponse(r reservation.Reservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		EventID:   r.EventID,
		UserID:    r.UserID,
		Status:    string(r.Status),
		ExpiresAt: r.ExpiresAt,
		PaidAt:    r.PaidAt,
		CreatedAt: r.CreatedAt,
	}
}
