package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/auth"
	"github.com/aveksana/referrals-api/internal/config"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/ratelimit"
	"github.com/aveksana/referrals-api/internal/referral"
	"github.com/aveksana/referrals-api/internal/user"
)

func newTestRouter(t *testing.T, env string, ping func(context.Context) error) http.Handler {
	t.Helper()
	logger := logging.NewNopLogger()
	store := user.NewMemoryRepository()

	tokens, err := auth.NewPasetoService([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	authService := auth.NewService(store, tokens, logger, time.Hour, 20)
	referralService := referral.NewService(store, referral.DefaultRules(), logger)

	cfg := &config.Config{Server: config.ServerConfig{Env: env, TrustedOrigins: []string{"http://localhost:3000"}}}
	return NewRouter(cfg, Handlers{
		Auth:           auth.NewHandler(authService, ratelimit.Noop{}),
		AuthMiddleware: auth.NewMiddleware(tokens),
		Referral:       referral.NewHandler(referralService, auth.UserIDFromRequest),
		User:           user.NewHandler(store),
		Ping:           ping,
	}, logger)
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	rec := serve(newTestRouter(t, "dev", nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"api is running"}`, rec.Body.String())

	down := func(context.Context) error { return errors.New("no route to host") }
	rec = serve(newTestRouter(t, "dev", down), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	rec := serve(newTestRouter(t, "prod", nil), http.MethodGet, "/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = serve(newTestRouter(t, "dev", nil), http.MethodGet, "/health", "")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRouter_DevelopmentOnlyRoutes(t *testing.T) {
	rec := serve(newTestRouter(t, "dev", nil), http.MethodGet, "/users?email=a@example.com", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newTestRouter(t, "prod", nil), http.MethodGet, "/users?email=a@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_EndToEnd(t *testing.T) {
	h := newTestRouter(t, "prod", nil)

	rec := serve(h, http.MethodPost, "/auth/signup", `{"email":"r@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/referrals/summary", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/referrals/reconcile", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
