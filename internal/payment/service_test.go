package payment

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
	"github.com/pgkim42/ticket-queue/internal/expiration"
	"github.com/pgkim42/ticket-queue/internal/ledger"
	"github.com/pgkim42/ticket-queue/internal/metrics"
	"github.com/pgkim42/ticket-queue/internal/testutil"
)

type paymentFixture struct {
	service  *Service
	ledger   *ledger.Ledger
	entries  *testutil.MemQueueRepo
	resies   *testutil.MemReservationRepo
	notifier *testutil.CaptureNotifier
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &paymentFixture{
		ledger:   ledger.New(rdb),
		entries:  testutil.NewMemQueueRepo(),
		resies:   testutil.NewMemReservationRepo(),
		notifier: testutil.NewCaptureNotifier(),
	}
	f.service = NewService(
		f.resies, f.entries, f.ledger,
		f.notifier, testutil.NewCaptureAuditor(),
		metrics.New(prometheus.NewRegistry()),
		zap.NewNop(),
	)
	return f
}

// holdSeat seeds an admitted user: pending reservation, ACTIVE entry, live
// active marker and an empty seat pool.
func (f *paymentFixture) holdSeat(t *testing.T, eventID, userID string, window time.Duration) reservation.Reservation {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ledger.InitializeSeats(ctx, eventID, 0))

	res := reservation.New(eventID, userID, window)
	require.NoError(t, f.resies.Create(ctx, res))
	require.NoError(t, f.entries.Create(ctx, queue.New(eventID, userID, 1)))
	won, err := f.entries.MarkActive(ctx, eventID, userID, res.ID)
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, f.ledger.SetActive(ctx, eventID, userID, window))
	return res
}

func TestPaySettlesReservation(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice", time.Minute)

	paid, err := f.service.Pay(ctx, res.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	entry, err := f.entries.GetByEventAndUser(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusDone, entry.Status)

	active, err := f.ledger.IsActive(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.False(t, active)

	// Payment never touches the seat counter.
	remaining, err := f.ledger.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	require.Len(t, f.notifier.Paid, 1)
	assert.Equal(t, res.ID, f.notifier.Paid[0].ReservationID)
}

func TestPayUnknownReservation(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.service.Pay(context.Background(), "ghost", "alice")
	assert.ErrorIs(t, err, reservation.ErrNotFound)
}

func TestPayWrongOwner(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice", time.Minute)

	_, err := f.service.Pay(ctx, res.ID, "mallory")
	assert.ErrorIs(t, err, ErrWrongOwner)

	// The reservation is untouched and still payable by its owner.
	got, err := f.resies.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPendingPayment, got.Status)
}

func TestPayAfterDeadline(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice", time.Minute)

	f.service.now = func() time.Time { return res.ExpiresAt.Add(time.Second) }

	_, err := f.service.Pay(ctx, res.ID, "alice")
	assert.ErrorIs(t, err, ErrWindowElapsed)

	// Expiring the row belongs to the pipeline, not to a failed payment.
	got, err := f.resies.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPendingPayment, got.Status)
}

func TestPayTwice(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice", time.Minute)

	_, err := f.service.Pay(ctx, res.ID, "alice")
	require.NoError(t, err)

	_, err = f.service.Pay(ctx, res.ID, "alice")
	assert.ErrorIs(t, err, ErrAlreadyFinal)
	assert.Len(t, f.notifier.Paid, 1)
}

func TestPayLosesRaceToExpiration(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	res := f.holdSeat(t, "e1", "alice", time.Minute)

	won, err := f.resies.MarkExpired(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, won)

	_, err = f.service.Pay(ctx, res.ID, "alice")
	assert.ErrorIs(t, err, ErrAlreadyFinal)
}

func TestConcurrentPayAndExpireExclusive(t *testing.T) {
	// Payment and expiration race the same conditional update; across many
	// rounds exactly one side ever wins, and the seat counter reflects the
	// winner: unchanged on PAID, incremented once on EXPIRED.
	for round := range 20 {
		f := newPaymentFixture(t)
		ctx := context.Background()
		res := f.holdSeat(t, "e1", "alice", time.Minute)

		pipeline := expiration.NewPipeline(
			f.resies, f.entries, f.ledger,
			f.notifier, testutil.NewCaptureAuditor(),
			metrics.New(prometheus.NewRegistry()),
			func(context.Context, string) {}, zap.NewNop(),
		)

		var wg sync.WaitGroup
		var payErr, expireErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, payErr = f.service.Pay(ctx, res.ID, "alice")
		}()
		go func() {
			defer wg.Done()
			expireErr = pipeline.Expire(ctx, res.ID)
		}()
		wg.Wait()
		require.NoError(t, expireErr)

		got, err := f.resies.Get(ctx, res.ID)
		require.NoError(t, err)
		remaining, err := f.ledger.RemainingSeats(ctx, "e1")
		require.NoError(t, err)

		switch got.Status {
		case reservation.StatusPaid:
			require.NoError(t, payErr, "round %d", round)
			assert.Zero(t, remaining, "round %d: a paid seat stays consumed", round)
		case reservation.StatusExpired:
			assert.ErrorIs(t, payErr, ErrAlreadyFinal, "round %d", round)
			assert.Equal(t, int64(1), remaining, "round %d: the seat returned exactly once", round)
		default:
			t.Fatalf("round %d: reservation left non-terminal: %s", round, got.Status)
		}
	}
}
