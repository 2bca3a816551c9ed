package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgkim42/ticket-queue/internal/domain/user"
	"github.com/pgkim42/ticket-queue/internal/testutil"
)

func seedUser(t *testing.T, repo *testutil.MemUserRepo, email, password string, role user.Role) user.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	u := user.User{
		ID:           "u-" + email,
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	tokens := NewTokenManager("test-secret", time.Hour)
	svc := NewService(repo, tokens)
	seeded := seedUser(t, repo, "alice@example.com", "hunter2", user.RoleCustomer)

	token, u, err := svc.Login(context.Background(), "alice@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, u.ID)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, claims.Subject)
	assert.Equal(t, seeded.Email, claims.Email)
	assert.Equal(t, user.RoleCustomer, claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := testutil.NewMemUserRepo()
	svc := NewService(repo, NewTokenManager("test-secret", time.Hour))
	seedUser(t, repo, "alice@example.com", "hunter2", user.RoleCustomer)

	_, _, err := svc.Login(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nobody@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, err := issuer.Issue(user.User{ID: "u1", Email: "a@b.c", Role: user.RoleAdmin})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tokens := NewTokenManager("test-secret", -time.Minute)

	token, err := tokens.Issue(user.User{ID: "u1", Email: "a@b.c", Role: user.RoleCustomer})
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tokens := NewTokenManager("test-secret", time.Hour)

	_, err := tokens.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
