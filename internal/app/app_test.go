package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/config"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/ratelimit"
	"github.com/aveksana/referrals-api/internal/user"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestOpenStore_Memory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreMemory}}

	s, err := OpenStore(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	assert.IsType(t, &user.MemoryRepository{}, s.Users)
	assert.Nil(t, s.Ping)
	assert.NoError(t, s.Close())
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	_, err := OpenStore(context.Background(), cfg, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestNewTokenService(t *testing.T) {
	for _, format := range []string{config.TokenPaseto, config.TokenJWT} {
		t.Run(format, func(t *testing.T) {
			svc, err := NewTokenService(config.AuthConfig{TokenFormat: format, PasetoKey: testKey, JWTSecret: testKey})
			require.NoError(t, err)

			id := uuid.New()
			token, err := svc.CreateToken(id, "a@example.com", time.Minute)
			require.NoError(t, err)

			claims, err := svc.VerifyToken(token)
			require.NoError(t, err)
			assert.Equal(t, id.String(), claims.Subject)
		})
	}

	_, err := NewTokenService(config.AuthConfig{TokenFormat: "saml"})
	assert.Error(t, err)
}

func TestOpenRateLimiter_Disabled(t *testing.T) {
	cfg := &config.Config{RateLimit: config.RateLimitConfig{Enabled: false}}

	limiter, closeFn := OpenRateLimiter(context.Background(), cfg, logging.NewNopLogger())
	assert.Equal(t, ratelimit.Noop{}, limiter)
	assert.NoError(t, closeFn())
}

func TestOpenRateLimiter_RedisDown(t *testing.T) {
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute},
		Redis:     config.RedisConfig{Host: "127.0.0.1", Port: "1"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	limiter, closeFn := OpenRateLimiter(ctx, cfg, logging.NewNopLogger())
	assert.Equal(t, ratelimit.Noop{}, limiter)
	assert.NoError(t, closeFn())
}

func TestCloseAll(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	calls := 0
	count := func(err error) func() error {
		return func() error { calls++; return err }
	}

	err := CloseAll(count(first), nil, count(nil), count(second))
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.NoError(t, CloseAll())
}
