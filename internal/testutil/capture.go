package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/pgkim42/ticket-queue/internal/audit"
	"github.com/pgkim42/ticket-queue/internal/notify"
)

// CaptureNotifier records every notification for assertions.
type CaptureNotifier struct {
	mu       sync.Mutex
	Active   []notify.QueueActiveData
	SoldOut  []notify.QueueSoldOutData
	Position []notify.QueuePositionData
	Expired  []notify.ReservationExpiredData
	Paid     []notify.ReservationPaidData
}

func NewCaptureNotifier() *CaptureNotifier { return &CaptureNotifier{} }

func (c *CaptureNotifier) QueuePosition(_ context.Context, _ string, d notify.QueuePositionData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Position = append(c.Position, d)
}

func (c *CaptureNotifier) QueueActive(_ context.Context, _ string, d notify.QueueActiveData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Active = append(c.Active, d)
}

func (c *CaptureNotifier) QueueSoldOut(_ context.Context, _ string, d notify.QueueSoldOutData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SoldOut = append(c.SoldOut, d)
}

func (c *CaptureNotifier) ReservationExpired(_ context.Context, _ string, d notify.ReservationExpiredData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Expired = append(c.Expired, d)
}

func (c *CaptureNotifier) ReservationPaid(_ context.Context, _ string, d notify.ReservationPaidData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Paid = append(c.Paid, d)
}

// SoldOutCount returns how many sold-out notifications were delivered.
func (c *CaptureNotifier) SoldOutCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.SoldOut)
}

// CaptureScheduler records scheduled expiration jobs.
type CaptureScheduler struct {
	mu   sync.Mutex
	Jobs []ScheduledJob
}

type ScheduledJob struct {
	ReservationID string
	Delay         time.Duration
}

func NewCaptureScheduler() *CaptureScheduler { return &CaptureScheduler{} }

func (s *CaptureScheduler) Schedule(_ context.Context, reservationID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Jobs = append(s.Jobs, ScheduledJob{ReservationID: reservationID, Delay: delay})
	return nil
}

// Count returns how many jobs were scheduled.
func (s *CaptureScheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Jobs)
}

// CaptureAuditor records audit entries.
type CaptureAuditor struct {
	mu      sync.Mutex
	Records []audit.Record
}

func NewCaptureAuditor() *CaptureAuditor { return &CaptureAuditor{} }

func (c *CaptureAuditor) Record(_ context.Context, r audit.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Records = append(c.Records, r)
}
