package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestSeatsCounter(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, led.InitializeSeats(ctx, "e1", 2))

	v, err := led.DecrementSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = led.DecrementSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	// Third decrement goes negative: the sold-out signal.
	v, err = led.DecrementSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)

	// The public getter never exposes the transient negative.
	remaining, err := led.RemainingSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)

	v, err = led.IncrementSeats(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestRemainingSeatsAbsentKey(t *testing.T) {
	led, _ := newTestLedger(t)

	remaining, err := led.RemainingSeats(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestQueueOrderAndIdempotentAdd(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	p1, err := led.AddToQueue(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p1)

	p2, err := led.AddToQueue(ctx, "e1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p2)

	// Re-adding alice keeps her original score and rank.
	p1Again, err := led.AddToQueue(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p1Again)

	length, err := led.QueueLength(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	head, ok, err := led.PeekHead(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", head)

	require.NoError(t, led.RemoveFromQueue(ctx, "e1", "alice"))

	head, ok, err = led.PeekHead(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", head)

	pos, found, err := led.QueuePosition(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, pos)
}

func TestPeekHeadEmpty(t *testing.T) {
	led, _ := newTestLedger(t)

	_, ok, err := led.PeekHead(context.Background(), "e1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActiveMarkerLifecycle(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, led.SetActive(ctx, "e1", "alice", time.Minute))

	active, err := led.IsActive(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.True(t, active)

	n, err := led.ActiveCount(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, led.ClearActive(ctx, "e1", "alice"))

	active, err = led.IsActive(ctx, "e1", "alice")
	require.NoError(t, err)
	assert.False(t, active)

	n, err = led.ActiveCount(ctx, "e1")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Clearing twice is a no-op, not an underflow.
	require.NoError(t, led.ClearActive(ctx, "e1", "alice"))
	n, err = led.ActiveCount(ctx, "e1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestActiveCountPrunesElapsedDeadlines(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	// Alice's deadline elapses while bob's window is open; when her marker
	// TTL fires silently the count must not drift.
	require.NoError(t, led.SetActive(ctx, "e1", "alice", time.Millisecond))
	require.NoError(t, led.SetActive(ctx, "e1", "bob", time.Minute))
	time.Sleep(20 * time.Millisecond)

	n, err := led.ActiveCount(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClaimExpirationOnce(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	ok, err := led.ClaimExpiration(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = led.ClaimExpiration(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, err := led.ExpirationClaimed(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimExpirationConcurrent(t *testing.T) {
	led, _ := newTestLedger(t)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := led.ClaimExpiration(ctx, "r-storm")
			if err == nil && ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var total int
	for range wins {
		total++
	}
	assert.Equal(t, 1, total, "the fence must admit exactly one claimant")
}
