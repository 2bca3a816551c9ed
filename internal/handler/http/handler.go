// Package http exposes the REST surface.
//
//	POST /auth/login
//	GET  /events, /events/:id
//	POST /events/:id/queue/join, GET /events/:id/queue/me
//	POST /reservations/:id/pay
//	POST /admin/events, GET /admin/events/:id/stats
//	GET  /ws (websocket push), /healthz, /metrics, /swagger
package http

import (
	"net/http"

	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	_ "github.com/pgkim42/ticket-queue/docs"
	"github.com/pgkim42/ticket-queue/internal/auth"
	"github.com/pgkim42/ticket-queue/internal/events"
	"github.com/pgkim42/ticket-queue/internal/payment"
	"github.com/pgkim42/ticket-queue/internal/queueing"
)

// Handler wires services to routes.
type Handler struct {
	auth     *auth.Service
	tokens   *auth.TokenManager
	events   *events.Service
	queueing *queueing.Service
	payment  *payment.Service
	ws       http.Handler
	logger   *zap.Logger
}

func NewHandler(
	authSvc *auth.Service,
	tokens *auth.TokenManager,
	eventsSvc *events.Service,
	queueingSvc *queueing.Service,
	paymentSvc *payment.Service,
	ws http.Handler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		auth:     authSvc,
		tokens:   tokens,
		events:   eventsSvc,
		queueing: queueingSvc,
		payment:  paymentSvc,
		ws:       ws,
		logger:   logger,
	}
}

// Router builds the chi router with the full middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(chiprometheus.NewMiddleware("ticket-queue"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler())

	r.Post("/auth/login", h.login)
	r.Get("/events", h.listEvents)
	r.Get("/events/{id}", h.getEvent)

	if h.ws != nil {
		r.Handle("/ws", h.ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/events/{id}/queue/join", h.joinQueue)
		r.Get("/events/{id}/queue/me", h.myQueueStatus)
		r.Post("/reservations/{id}/pay", h.payReservation)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/events", h.createEvent)
			r.Get("/events/{id}/stats", h.eventStats)
		})
	})

	return r
}
