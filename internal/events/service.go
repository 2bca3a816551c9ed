// Package events implements the event catalog: admin creation, public
// listing and per-event admin statistics.
//
// Event rows are immutable to the concurrency core, so reads go through a
// short-TTL in-process cache; the live remaining-seat count is always read
// from the ledger, never cached.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/pgkim42/ticket-queue/internal/domain/event"
	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/ledger"
)

var (
	// ErrInvalidWindow is returned when salesEndAt is not after salesStartAt.
	ErrInvalidWindow = errors.New("sales window is empty or inverted")
	// ErrInvalidSeats is returned for a non-positive seat total.
	ErrInvalidSeats = errors.New("total seats must be positive")
)

// Summary is an event joined with its live remaining-seat count.
type Summary struct {
	event.Event
	RemainingSeats int64
}

// Stats is the admin view of one event's queue and reservations.
type Stats struct {
	EventID           string
	RemainingSeats    int64
	QueueLength       int64
	ReservationCounts map[reservation.Status]int
}

// CreateRequest carries the admin event-creation input.
type CreateRequest struct {
	Name         string
	TotalSeats   int
	SalesStartAt time.Time
	SalesEndAt   time.Time
}

// Service is the event catalog.
type Service struct {
	repo         event.Repository
	reservations reservation.Repository
	ledger       *ledger.Ledger
	cache        *gocache.Cache
	tracer       trace.Tracer
}

func NewService(repo event.Repository, reservations reservation.Repository, led *ledger.Ledger) *Service {
	return &Service{
		repo:         repo,
		reservations: reservations,
		ledger:       led,
		cache:        gocache.New(30*time.Second, time.Minute),
		tracer:       otel.Tracer("events"),
	}
}

// Create validates the request, persists the event and initializes the
// ledger's seat counter. The counter write happens exactly once, here.
func (s *Service) Create(ctx context.Context, req CreateRequest) (event.Event, error) {
	ctx, span := s.tracer.Start(ctx, "events.Create")
	defer span.End()

	if req.TotalSeats <= 0 {
		return event.Event{}, ErrInvalidSeats
	}
	if !req.SalesEndAt.After(req.SalesStartAt) {
		return event.Event{}, ErrInvalidWindow
	}

	e := event.Event{
		ID:           newID(),
		Name:         req.Name,
		TotalSeats:   req.TotalSeats,
		SalesStartAt: req.SalesStartAt.UTC(),
		SalesEndAt:   req.SalesEndAt.UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return event.Event{}, fmt.Errorf("events: create: %w", err)
	}
	if err := s.ledger.InitializeSeats(ctx, e.ID, e.TotalSeats); err != nil {
		return event.Event{}, fmt.Errorf("events: initialize seats: %w", err)
	}
	return e, nil
}

// Get returns one event, served from cache when fresh.
func (s *Service) Get(ctx context.Context, id string) (event.Event, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(event.Event), nil
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return event.Event{}, err
	}
	s.cache.SetDefault(id, e)
	return e, nil
}

// GetSummary returns one event with its live remaining-seat count.
func (s *Service) GetSummary(ctx context.Context, id string) (Summary, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	remaining, err := s.ledger.RemainingSeats(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Event: e, RemainingSeats: remaining}, nil
}

// List returns all events with live remaining-seat counts.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	ctx, span := s.tracer.Start(ctx, "events.List")
	defer span.End()

	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(all))
	for _, e := range all {
		remaining, err := s.ledger.RemainingSeats(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{Event: e, RemainingSeats: remaining})
	}
	return out, nil
}

// ListOnSale returns the events currently inside their sales window; the
// promotion trigger iterates them.
func (s *Service) ListOnSale(ctx context.Context) ([]event.Event, error) {
	return s.repo.ListOnSale(ctx)
}

// Stats assembles the admin statistics view from the ledger and the mirror.
func (s *Service) Stats(ctx context.Context, id string) (Stats, error) {
	ctx, span := s.tracer.Start(ctx, "events.Stats")
	defer span.End()

	if _, err := s.Get(ctx, id); err != nil {
		return Stats{}, err
	}
	remaining, err := s.ledger.RemainingSeats(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	length, err := s.ledger.QueueLength(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	counts, err := s.reservations.CountByStatus(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		EventID:           id,
		RemainingSeats:    remaining,
		QueueLength:       length,
		ReservationCounts: counts,
	}, nil
}
