// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the domain counters. HTTP-level metrics come from the
// chi-prometheus middleware and are registered separately.
type Metrics struct {
	QueueJoins    prometheus.Counter
	Promotions    *prometheus.CounterVec
	SeatsRestored prometheus.Counter
	Expirations   prometheus.Counter
	Payments      *prometheus.CounterVec
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketqueue_joins_total",
			Help: "Queue join requests accepted.",
		}),
		Promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketqueue_promotions_total",
			Help: "Promotion attempts by outcome.",
		}, []string{"outcome"}),
		SeatsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketqueue_seats_restored_total",
			Help: "Seats returned to the pool by the expiration pipeline.",
		}),
		Expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticketqueue_expirations_total",
			Help: "Reservations expired.",
		}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticketqueue_payments_total",
			Help: "Payment attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.QueueJoins, m.Promotions, m.SeatsRestored, m.Expirations, m.Payments)
	return m
}
