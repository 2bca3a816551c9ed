package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pgkim42/ticket-queue/internal/auth"
	"github.com/pgkim42/ticket-queue/internal/client"
	"github.com/pgkim42/ticket-queue/internal/domain/user"
	"github.com/pgkim42/ticket-queue/internal/events"
	"github.com/pgkim42/ticket-queue/internal/ledger"
	"github.com/pgkim42/ticket-queue/internal/metrics"
	"github.com/pgkim42/ticket-queue/internal/payment"
	"github.com/pgkim42/ticket-queue/internal/promotion"
	"github.com/pgkim42/ticket-queue/internal/queueing"
	"github.com/pgkim42/ticket-queue/internal/testutil"
)

type apiFixture struct {
	server *httptest.Server
	engine *promotion.Engine
	users  *testutil.MemUserRepo
}

// anonymous returns a fresh unauthenticated client.
func (f *apiFixture) anonymous() *client.Client {
	return client.New(f.server.URL)
}

// loginAs authenticates a seeded user and returns a bearer-scoped client.
func (f *apiFixture) loginAs(t *testing.T, email string) *client.Client {
	t.Helper()
	c := client.New(f.server.URL)
	res, err := c.Login(context.Background(), email, "password")
	require.NoError(t, err)
	return c.SetToken(res.AccessToken)
}

// The chi-prometheus middleware registers on the default registry, so the
// full stack is assembled once and the scenarios run as subtests.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	led := ledger.New(rdb)
	eventRepo := testutil.NewMemEventRepo()
	entries := testutil.NewMemQueueRepo()
	resies := testutil.NewMemReservationRepo()
	userRepo := testutil.NewMemUserRepo()
	m := metrics.New(prometheus.NewRegistry())
	notifier := testutil.NewCaptureNotifier()
	auditor := testutil.NewCaptureAuditor()
	logger := zap.NewNop()

	for _, seed := range []struct {
		id, email string
		role      user.Role
	}{
		{"u-admin", "admin@test.local", user.RoleAdmin},
		{"u-alice", "alice@test.local", user.RoleCustomer},
		{"u-bob", "bob@test.local", user.RoleCustomer},
	} {
		hash, err := auth.HashPassword("password")
		require.NoError(t, err)
		require.NoError(t, userRepo.Create(context.Background(), user.User{
			ID: seed.id, Email: seed.email, Name: seed.id, PasswordHash: hash, Role: seed.role,
		}))
	}

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	eventsSvc := events.NewService(eventRepo, resies, led)
	queueingSvc := queueing.NewService(eventsSvc, entries, resies, led, notifier, auditor, m)
	paymentSvc := payment.NewService(resies, entries, led, notifier, auditor, m, logger)
	engine := promotion.NewEngine(
		led, entries, resies,
		testutil.NewCaptureScheduler(), notifier, auditor, m, logger,
		promotion.Config{PaymentWindow: time.Minute, MaxActive: 100},
	)

	h := NewHandler(auth.NewService(userRepo, tokens), tokens, eventsSvc, queueingSvc, paymentSvc, nil, logger)
	server := httptest.NewServer(h.Router())
	t.Cleanup(server.Close)

	return &apiFixture{server: server, engine: engine, users: userRepo}
}

func TestAPI(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	t.Run("login rejects bad password", func(t *testing.T) {
		_, err := f.anonymous().Login(ctx, "alice@test.local", "wrong")
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 401, apiErr.StatusCode)
		assert.NotEmpty(t, apiErr.Message)
		assert.NotEmpty(t, apiErr.ErrorName)
	})

	t.Run("protected routes require a token", func(t *testing.T) {
		_, err := f.anonymous().JoinQueue(ctx, "any")
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 401, apiErr.StatusCode)
	})

	t.Run("admin surface rejects customers", func(t *testing.T) {
		alice := f.loginAs(t, "alice@test.local")
		_, err := alice.CreateEvent(ctx, "forbidden", 10, time.Now(), time.Now().Add(time.Hour))
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 403, apiErr.StatusCode)
	})

	t.Run("full purchase flow", func(t *testing.T) {
		admin := f.loginAs(t, "admin@test.local")
		created, err := admin.CreateEvent(ctx, "concert", 2,
			time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		listed, err := f.anonymous().ListEvents(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, listed)

		got, err := f.anonymous().GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.RemainingSeats)

		alice := f.loginAs(t, "alice@test.local")
		join, err := alice.JoinQueue(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), join.Position)
		assert.Equal(t, "WAITING", join.Status)

		// Rejoining answers with the same position.
		again, err := alice.JoinQueue(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, join.Position, again.Position)

		out, err := f.engine.PromoteOne(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, promotion.KindPromoted, out.Kind)

		me, err := alice.QueueMe(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ACTIVE", me.Status)
		require.NotNil(t, me.ReservationID)
		require.NotNil(t, me.ExpiresAt)

		// Another user cannot pay alice's reservation.
		bob := f.loginAs(t, "bob@test.local")
		_, err = bob.Pay(ctx, *me.ReservationID)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 403, apiErr.StatusCode)

		paid, err := alice.Pay(ctx, *me.ReservationID)
		require.NoError(t, err)
		assert.Equal(t, "PAID", paid.Status)
		require.NotNil(t, paid.PaidAt)

		_, err = alice.Pay(ctx, *me.ReservationID)
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.StatusCode)

		me, err = alice.QueueMe(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "DONE", me.Status)

		stats, err := admin.EventStats(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.RemainingSeats)
		assert.Equal(t, 1, stats.ReservationCounts["PAID"])
		assert.Equal(t, 0, stats.ReservationCounts["EXPIRED"])
	})

	t.Run("unknown event yields structured 404", func(t *testing.T) {
		alice := f.loginAs(t, "alice@test.local")
		_, err := alice.JoinQueue(ctx, "ghost")
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.StatusCode)
		assert.NotEmpty(t, apiErr.Message)
	})

	t.Run("queue status before joining yields 404", func(t *testing.T) {
		admin := f.loginAs(t, "admin@test.local")
		created, err := admin.CreateEvent(ctx, "solo", 1,
			time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)

		bob := f.loginAs(t, "bob@test.local")
		_, err = bob.QueueMe(ctx, created.ID)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 404, apiErr.StatusCode)
	})

	t.Run("join outside the sales window yields 400", func(t *testing.T) {
		admin := f.loginAs(t, "admin@test.local")
		created, err := admin.CreateEvent(ctx, "tomorrow", 5,
			time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
		require.NoError(t, err)

		alice := f.loginAs(t, "alice@test.local")
		_, err = alice.JoinQueue(ctx, created.ID)
		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.StatusCode)
	})
}
