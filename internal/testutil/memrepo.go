// Package testutil provides in-memory doubles for the durable mirror and
// the side-effect ports. The repositories reproduce the conditional-update
// semantics of the postgres implementations under a mutex, so concurrency
// tests exercise the same race resolution as production.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pgkim42/ticket-queue/internal/domain/event"
	"github.com/pgkim42/ticket-queue/internal/domain/queue"
	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/domain/user"
)

// MemEventRepo is an in-memory event.Repository.
type MemEventRepo struct {
	mu     sync.Mutex
	events map[string]event.Event
}

func NewMemEventRepo() *MemEventRepo {
	return &MemEventRepo{events: make(map[string]event.Event)}
}

func (r *MemEventRepo) Create(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ID] = e
	return nil
}

func (r *MemEventRepo) Get(_ context.Context, id string) (event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

func (r *MemEventRepo) List(_ context.Context) ([]event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e)
	}
	return out, nil
}

func (r *MemEventRepo) ListOnSale(_ context.Context) ([]event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []event.Event
	for _, e := range r.events {
		if e.SalesOpen(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemQueueRepo is an in-memory queue.Repository keyed by (event, user).
type MemQueueRepo struct {
	mu      sync.Mutex
	entries map[string]queue.Entry
}

func NewMemQueueRepo() *MemQueueRepo {
	return &MemQueueRepo{entries: make(map[string]queue.Entry)}
}

func entryKey(eventID, userID string) string { return eventID + "/" + userID }

func (r *MemQueueRepo) Create(_ context.Context, e queue.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey(e.EventID, e.UserID)
	if _, exists := r.entries[key]; exists {
		// Unique constraint: first writer wins, duplicate is swallowed.
		return nil
	}
	r.entries[key] = e
	return nil
}

func (r *MemQueueRepo) GetByEventAndUser(_ context.Context, eventID, userID string) (queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entryKey(eventID, userID)]
	if !ok {
		return queue.Entry{}, queue.ErrNotFound
	}
	return e, nil
}

func (r *MemQueueRepo) MarkActive(_ context.Context, eventID, userID, reservationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey(eventID, userID)
	e, ok := r.entries[key]
	if !ok || e.Status != queue.StatusWaiting {
		return false, nil
	}
	e.Status = queue.StatusActive
	e.ReservationID = &reservationID
	e.UpdatedAt = time.Now()
	r.entries[key] = e
	return true, nil
}

func (r *MemQueueRepo) MarkDone(ctx context.Context, eventID, userID string) (bool, error) {
	return r.transition(eventID, userID, queue.StatusDone)
}

func (r *MemQueueRepo) MarkExpired(ctx context.Context, eventID, userID string) (bool, error) {
	return r.transition(eventID, userID, queue.StatusExpired)
}

func (r *MemQueueRepo) MarkExpiredFromWaiting(_ context.Context, eventID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey(eventID, userID)
	e, ok := r.entries[key]
	if !ok || e.Status != queue.StatusWaiting {
		return false, nil
	}
	e.Status = queue.StatusExpired
	e.UpdatedAt = time.Now()
	r.entries[key] = e
	return true, nil
}

func (r *MemQueueRepo) transition(eventID, userID string, to queue.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entryKey(eventID, userID)
	e, ok := r.entries[key]
	if !ok || e.Status.Terminal() {
		return false, nil
	}
	e.Status = to
	e.UpdatedAt = time.Now()
	r.entries[key] = e
	return true, nil
}

// CountByStatus tallies entries per status for assertions.
func (r *MemQueueRepo) CountByStatus(eventID string) map[queue.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[queue.Status]int)
	for _, e := range r.entries {
		if e.EventID == eventID {
			out[e.Status]++
		}
	}
	return out
}

// MemReservationRepo is an in-memory reservation.Repository.
type MemReservationRepo struct {
	mu           sync.Mutex
	reservations map[string]reservation.Reservation
}

func NewMemReservationRepo() *MemReservationRepo {
	return &MemReservationRepo{reservations: make(map[string]reservation.Reservation)}
}

func (r *MemReservationRepo) Create(_ context.Context, res reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reservations[res.ID]; exists {
		return fmt.Errorf("duplicate reservation %s", res.ID)
	}
	r.reservations[res.ID] = res
	return nil
}

func (r *MemReservationRepo) Get(_ context.Context, id string) (reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrNotFound
	}
	return res, nil
}

func (r *MemReservationRepo) MarkPaid(_ context.Context, id string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok || res.Status != reservation.StatusPendingPayment {
		return false, nil
	}
	res.Status = reservation.StatusPaid
	res.PaidAt = &paidAt
	r.reservations[id] = res
	return true, nil
}

func (r *MemReservationRepo) MarkExpired(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok || res.Status != reservation.StatusPendingPayment {
		return false, nil
	}
	res.Status = reservation.StatusExpired
	r.reservations[id] = res
	return true, nil
}

func (r *MemReservationRepo) ListPendingBefore(_ context.Context, deadline time.Time, limit int) ([]reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reservation.Reservation
	for _, res := range r.reservations {
		if res.Status == reservation.StatusPendingPayment && !res.ExpiresAt.After(deadline) {
			out = append(out, res)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemReservationRepo) CountByStatus(_ context.Context, eventID string) (map[reservation.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[reservation.Status]int)
	for _, res := range r.reservations {
		if res.EventID == eventID {
			out[res.Status]++
		}
	}
	return out, nil
}

// MemUserRepo is an in-memory user.Repository.
type MemUserRepo struct {
	mu    sync.Mutex
	users map[string]user.User
}

func NewMemUserRepo() *MemUserRepo {
	return &MemUserRepo{users: make(map[string]user.User)}
}

func (r *MemUserRepo) Create(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *MemUserRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *MemUserRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}
