// Package client is a typed API client for the ticket-queue REST surface.
// The end-to-end suite drives the service through it; it is equally usable
// from external tooling.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to one ticket-queue server.
type Client struct {
	http *resty.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
}

// SetToken attaches a bearer token to every subsequent request.
func (c *Client) SetToken(token string) *Client {
	c.http.SetAuthToken(token)
	return c
}

type (
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	}

	LoginResult struct {
		AccessToken string `json:"accessToken"`
		User        User   `json:"user"`
	}

	Event struct {
		ID             string    `json:"id"`
		Name           string    `json:"name"`
		TotalSeats     int       `json:"totalSeats"`
		SalesStartAt   time.Time `json:"salesStartAt"`
		SalesEndAt     time.Time `json:"salesEndAt"`
		RemainingSeats int64     `json:"remainingSeats"`
	}

	Stats struct {
		EventID           string         `json:"eventId"`
		RemainingSeats    int64          `json:"remainingSeats"`
		QueueLength       int64          `json:"queueLength"`
		ReservationCounts map[string]int `json:"reservationCounts"`
	}

	JoinResult struct {
		Position int64  `json:"position"`
		Status   string `json:"status"`
		EventID  string `json:"eventId"`
		Message  string `json:"message"`
	}

	MyStatus struct {
		Position      int64      `json:"position"`
		Status        string     `json:"status"`
		EventID       string     `json:"eventId"`
		ExpiresAt     *time.Time `json:"expiresAt"`
		ReservationID *string    `json:"reservationId"`
	}

	Reservation struct {
		ID        string     `json:"id"`
		EventID   string     `json:"eventId"`
		UserID    string     `json:"userId"`
		Status    string     `json:"status"`
		ExpiresAt time.Time  `json:"expiresAt"`
		PaidAt    *time.Time `json:"paidAt"`
		CreatedAt time.Time  `json:"createdAt"`
	}

	APIError struct {
		StatusCode int    `json:"statusCode"`
		Message    string `json:"message"`
		ErrorName  string `json:"error"`
	}
)

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// do runs a prepared request and decodes either the success or error body.
func do[T any](req *resty.Request, method, url string) (T, error) {
	var out T
	var apiErr APIError
	resp, err := req.SetResult(&out).SetError(&apiErr).Execute(method, url)
	if err != nil {
		return out, err
	}
	if resp.IsError() {
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode()
			apiErr.Message = resp.Status()
		}
		return out, &apiErr
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	return do[LoginResult](
		c.http.R().SetContext(ctx).SetBody(map[string]string{"email": email, "password": password}),
		resty.MethodPost, "/auth/login")
}

func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	return do[[]Event](c.http.R().SetContext(ctx), resty.MethodGet, "/events")
}

func (c *Client) GetEvent(ctx context.Context, id string) (Event, error) {
	return do[Event](c.http.R().SetContext(ctx), resty.MethodGet, "/events/"+id)
}

func (c *Client) CreateEvent(ctx context.Context, name string, totalSeats int, salesStartAt, salesEndAt time.Time) (Event, error) {
	return do[Event](
		c.http.R().SetContext(ctx).SetBody(map[string]any{
			"name":         name,
			"totalSeats":   totalSeats,
			"salesStartAt": salesStartAt,
			"salesEndAt":   salesEndAt,
		}),
		resty.MethodPost, "/admin/events")
}

func (c *Client) EventStats(ctx context.Context, id string) (Stats, error) {
	return do[Stats](c.http.R().SetContext(ctx), resty.MethodGet, "/admin/events/"+id+"/stats")
}

func (c *Client) JoinQueue(ctx context.Context, eventID string) (JoinResult, error) {
	return do[JoinResult](c.http.R().SetContext(ctx), resty.MethodPost, "/events/"+eventID+"/queue/join")
}

func (c *Client) QueueMe(ctx context.Context, eventID string) (MyStatus, error) {
	return do[MyStatus](c.http.R().SetContext(ctx), resty.MethodGet, "/events/"+eventID+"/queue/me")
}

func (c *Client) Pay(ctx context.Context, reservationID string) (Reservation, error) {
	return do[Reservation](c.http.R().SetContext(ctx), resty.MethodPost, "/reservations/"+reservationID+"/pay")
}
