package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/user"
)

func newTestService(t *testing.T, store user.Store) (*Service, TokenService) {
	t.Helper()
	tokens, err := NewPasetoService(testKey)
	require.NoError(t, err)
	return NewService(store, tokens, logging.NewNopLogger(), 7*24*time.Hour, 20), tokens
}

func TestService_Signup(t *testing.T) {
	ctx := context.Background()
	store := user.NewMemoryRepository()
	svc, tokens := newTestService(t, store)

	r, err := svc.Signup(ctx, "r@example.com", "password123", "")
	require.NoError(t, err)
	assert.Len(t, r.User.ReferralCode, 7)
	assert.Nil(t, r.User.ReferredBy)
	assert.Zero(t, r.User.Credits)
	assert.Equal(t, user.StatusNone, r.User.ReferralStatus)

	claims, err := tokens.VerifyToken(r.Token)
	require.NoError(t, err)
	assert.Equal(t, r.User.ID.String(), claims.Subject)
	assert.Equal(t, "r@example.com", claims.Email)

	s, err := svc.Signup(ctx, "s@example.com", "password123", r.User.ReferralCode)
	require.NoError(t, err)
	require.NotNil(t, s.User.ReferredBy)
	assert.Equal(t, r.User.ID, *s.User.ReferredBy)
	assert.Equal(t, "r@example.com", s.User.ReferrerEmail)
	assert.Equal(t, 20, s.User.Credits)
	assert.Equal(t, user.StatusPending, s.User.ReferralStatus)
	assert.Len(t, s.User.ActivationEvents, 3)

	stored, err := store.GetByEmail(ctx, "s@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
}

func TestService_Signup_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, user.NewMemoryRepository())
	_, err := svc.Signup(ctx, "taken@example.com", "password123", "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		code     string
		want     error
	}{
		{"no email", "", "password123", "", ErrEmailRequired},
		{"bad email", "not-an-email", "password123", "", ErrInvalidEmailFormat},
		{"no password", "a@example.com", "", "", ErrPasswordRequired},
		{"short password", "a@example.com", "short", "", ErrPasswordTooShort},
		{"unknown code", "a@example.com", "password123", "zzzzzzz", ErrInvalidReferralCode},
		{"duplicate", "taken@example.com", "password123", "", user.ErrDuplicateEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.email, tt.password, tt.code)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// collidingStore rejects the first n creates as referral code collisions.
type collidingStore struct {
	user.Store
	n int
}

func (s *collidingStore) Create(ctx context.Context, u *user.User) (*user.User, error) {
	if s.n > 0 {
		s.n--
		return nil, user.ErrDuplicateReferralCode
	}
	return s.Store.Create(ctx, u)
}

func TestService_Signup_RetriesCodeCollision(t *testing.T) {
	ctx := context.Background()

	svc, _ := newTestService(t, &collidingStore{Store: user.NewMemoryRepository(), n: 2})
	_, err := svc.Signup(ctx, "a@example.com", "password123", "")
	assert.NoError(t, err)

	svc, _ = newTestService(t, &collidingStore{Store: user.NewMemoryRepository(), n: maxCodeAttempts})
	_, err = svc.Signup(ctx, "a@example.com", "password123", "")
	assert.ErrorIs(t, err, user.ErrDuplicateReferralCode)
}

// brokenStore fails every lookup.
type brokenStore struct{ user.Store }

func (brokenStore) GetByEmail(context.Context, string) (*user.User, error) {
	return nil, errors.New("connection refused")
}

func TestService_Signin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, user.NewMemoryRepository())
	created, err := svc.Signup(ctx, "a@example.com", "password123", "")
	require.NoError(t, err)

	session, err := svc.Signin(ctx, "a@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, session.User.ID)
	assert.NotEmpty(t, session.Token)

	for _, c := range [][2]string{{"a@example.com", "wrong-password"}, {"b@example.com", "password123"}, {"", ""}} {
		_, err := svc.Signin(ctx, c[0], c[1])
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	broken, _ := newTestService(t, brokenStore{user.NewMemoryRepository()})
	_, err = broken.Signin(ctx, "a@example.com", "password123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Me(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, user.NewMemoryRepository())
	created, err := svc.Signup(ctx, "a@example.com", "password123", "")
	require.NoError(t, err)

	u, err := svc.Me(ctx, created.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	_, err = svc.Me(ctx, uuid.New())
	assert.ErrorIs(t, err, user.ErrNotFound)
}
