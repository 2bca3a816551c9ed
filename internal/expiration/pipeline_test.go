package expiration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/domain/queue"
	"github.com/pgkim42/ticket-queue/internal/domain/reservation"
	"github.com/pgkim42/ticket-queue/internal/ledger"
	"github.com/pgkim42/ticket-queue/internal/metrics"
	"github.com/pgkim42/ticket-queue/internal/promotion"
	"github.com/pgkim42/ticket-queue/internal/testutil"
)

type pipelineFixture struct {
	pipeline *Pipeline
	ledger   *ledger.Ledger
	entries  *testutil.MemQueueRepo
	resies   *testutil.MemReservationRepo
	notifier *testutil.CaptureNotifier

	mu        sync.Mutex
	promotion []string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &pipelineFixture{
		ledger:   ledger.New(rdb),
		entries:  testutil.NewMemQueueRepo(),
		resies:   testutil.NewMemReservationRepo(),
		notifier: testutil.NewCaptureNotifier(),
	}
	promote := func(_ context.Context, eventID string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.promotion = append(f.promotion, eventID)
	}
	f.pipeline = NewPipeline(
		f.resies, f.entries, f.ledger,
		f.notifier, testutil.NewCaptureAuditor(),
		metrics.New(prometheus.NewRegistry()),
		promote, zap.NewNop(),
	)
	return f
}

// holdSeat puts a user in the admitted state: zero remaining seats, a pending
// reservation, an ACTIVE entry and a live active marker.
func (f *pipelineFixture) holdSeat(t *testing.T, eventID, userID string) reservation.Reservation {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ledger.InitializeSeats(ctx, eventID, 0))

	res := reservation.New(eventID, userID, time.Minute)
	require.NoError(t, f.resies.Create(ctx, res))

	entry := queue.New(eventID, userID, 1)
	require.NoError(t, f.entries.Create(ctx, entry))
	won, err := f.entries.MarkActive(ctx, eventID, userID, res.ID)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, f.ledger.SetActive(ctx, eventID, userID, time.Minute))
	return res
}

func (f *pipelineFixture) promotionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.promotion)
}

func TestExpireReturnsSeatOnce(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice")

	require.NoError(t, f.pipeline.Expire(ctx, res.ID))

	got, err := f.resies.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusExpired, got.Status)

	remaining, err := f.ledger.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	entry, err := f.entries.GetByEventAndUser(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusExpired, entry.Status)

	active, err := f.ledger.IsActive(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.False(t, active)

	require.Len(t, f.notifier.Expired, 1)
	assert.Equal(t, res.ID, f.notifier.Expired[0].ReservationID)
	assert.Equal(t, 1, f.promotionCalls())

	// Redelivery after completion is a no-op.
	require.NoError(t, f.pipeline.Expire(ctx, res.ID))
	remaining, err = f.ledger.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
	assert.Len(t, f.notifier.Expired, 1)
}

func TestExpireConcurrentDeliveries(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice")

	const deliveries = 5
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.pipeline.Expire(ctx, res.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	remaining, err := f.ledger.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining, "the seat comes back exactly once")

	got, err := f.resies.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusExpired, got.Status)

	assert.Len(t, f.notifier.Expired, 1)
	assert.Equal(t, 1, f.promotionCalls())
}

func TestExpireUnknownReservation(t *testing.T) {
	f := newPipelineFixture(t)

	require.NoError(t, f.pipeline.Expire(context.Background(), "ghost"))
	assert.Zero(t, f.promotionCalls())
}

func TestExpirePaidReservation(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice")

	won, err := f.resies.MarkPaid(ctx, res.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, f.pipeline.Expire(ctx, res.ID))

	// A paid seat stays consumed.
	remaining, err := f.ledger.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	got, err := f.resies.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPaid, got.Status)
	assert.Empty(t, f.notifier.Expired)
}

func TestExpireCompletesCrashedRun(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice")

	// A previous delivery claimed the fence and crashed before the
	// conditional update. The retry must finish the job.
	claimed, err := f.ledger.ClaimExpiration(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, f.pipeline.Expire(ctx, res.ID))

	got, err := f.resies.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusExpired, got.Status)

	remaining, err := f.ledger.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestExpiredSeatReadmitsNextWaiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	led := ledger.New(rdb)
	entries := testutil.NewMemQueueRepo()
	resies := testutil.NewMemReservationRepo()
	notifier := testutil.NewCaptureNotifier()
	auditor := testutil.NewCaptureAuditor()
	m := metrics.New(prometheus.NewRegistry())

	engine := promotion.NewEngine(
		led, entries, resies,
		testutil.NewCaptureScheduler(), notifier, auditor,
		m, zap.NewNop(),
		promotion.Config{PaymentWindow: time.Minute, MaxActive: 100},
	)
	pipeline := NewPipeline(
		resies, entries, led, notifier, auditor, m,
		func(ctx context.Context, eventID string) { _, _ = engine.PromoteOne(ctx, eventID) },
		zap.NewNop(),
	)

	ctx := context.Background()
	require.NoError(t, led.InitializeSeats(ctx, "e1", 1))
	for _, u := range []string{"alice", "bob"} {
		pos, err := led.AddToQueue(ctx, "e1", u)
		require.NoError(t, err)
		require.NoError(t, entries.Create(ctx, queue.New("e1", u, pos)))
	}

	out, err := engine.PromoteOne(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, promotion.KindPromoted, out.Kind)
	require.Equal(t, "alice", out.UserID)

	// Bob stays queued: the pool is spoken for, not sold out, so he is not
	// turned away while alice's window is open.
	bob, err := entries.GetByEventAndUser(ctx, "e1", "bob")
	require.NoError(t, err)
	require.Equal(t, queue.StatusWaiting, bob.Status)

	require.NoError(t, pipeline.Expire(ctx, out.Reservation.ID))

	// The returned seat flowed straight to bob through the promote hook.
	bob, err = entries.GetByEventAndUser(ctx, "e1", "bob")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusActive, bob.Status)
	require.NotNil(t, bob.ReservationID)

	bobRes, err := resies.Get(ctx, *bob.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPendingPayment, bobRes.Status)

	remaining, err := led.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}
