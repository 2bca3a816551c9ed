package event

import "context"

// Repository is the durable store for events.
type Repository interface {
	Create(ctx context.Context, e Event) error
	Get(ctx context.Context, id string) (Event, error)
	List(ctx context.Context) ([]Event, error)
	// ListOnSale returns events whose sales window contains now; the
	// promotion trigger iterates these.
	ListOnSale(ctx context.Context) ([]Event, error)
}
