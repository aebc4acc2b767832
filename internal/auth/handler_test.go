package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/httputil"
	"github.com/aveksana/referrals-api/internal/ratelimit"
	"github.com/aveksana/referrals-api/internal/user"
)

func newAuthRouter(t *testing.T) (http.Handler, TokenService) {
	t.Helper()
	svc, tokens := newTestService(t, user.NewMemoryRepository())
	h := NewHandler(svc, ratelimit.Noop{})
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) { h.Routes(r, NewMiddleware(tokens).RequireAuth) })
	return r, tokens
}

func send(h http.Handler, method, target, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SignupSigninMe(t *testing.T) {
	h, _ := newAuthRouter(t)

	rec := send(h, http.MethodPost, "/auth/signup", `{"email":"r@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var r SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.NotEmpty(t, r.Token)
	assert.Len(t, r.User.ReferralCode, 7)

	rec = send(h, http.MethodPost, "/auth/signup", `{"email":"s@example.com","password":"password123","referralCode":"`+r.User.ReferralCode+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(h, http.MethodPost, "/auth/signin", `{"email":"r@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var session SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, r.User.ID, session.User.ID)

	rec = send(h, http.MethodGet, "/auth/me", "", session.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, r.User, me.User)
}

func TestHandler_Signup_Errors(t *testing.T) {
	h, _ := newAuthRouter(t)
	send(h, http.MethodPost, "/auth/signup", `{"email":"taken@example.com","password":"password123"}`, "")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"bad json", `{`, http.StatusBadRequest, httputil.CodeInvalidRequestBody},
		{"missing email", `{"password":"password123"}`, http.StatusBadRequest, httputil.CodeEmailRequired},
		{"missing password", `{"email":"a@example.com"}`, http.StatusBadRequest, httputil.CodePasswordRequired},
		{"short password", `{"email":"a@example.com","password":"short"}`, http.StatusBadRequest, httputil.CodePasswordTooShort},
		{"bad email", `{"email":"nope","password":"password123"}`, http.StatusBadRequest, httputil.CodeInvalidEmailFormat},
		{"unknown code", `{"email":"a@example.com","password":"password123","referralCode":"zzzzzzz"}`, http.StatusBadRequest, httputil.CodeInvalidReferralCode},
		{"duplicate", `{"email":"taken@example.com","password":"password123"}`, http.StatusConflict, httputil.CodeEmailAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := send(h, http.MethodPost, "/auth/signup", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp httputil.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandler_Signin_InvalidCredentials(t *testing.T) {
	h, _ := newAuthRouter(t)
	send(h, http.MethodPost, "/auth/signup", `{"email":"a@example.com","password":"password123"}`, "")

	rec := send(h, http.MethodPost, "/auth/signin", `{"email":"a@example.com","password":"nope-nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), httputil.CodeInvalidCredentials)
}

func TestMiddleware_RequireAuth(t *testing.T) {
	h, tokens := newAuthRouter(t)

	expired, err := tokens.CreateToken(uuid.New(), "a@example.com", -time.Minute)
	require.NoError(t, err)
	unknownUser, err := tokens.CreateToken(uuid.New(), "a@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing", "", http.StatusUnauthorized, httputil.CodeMissingAuth},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, httputil.CodeInvalidAuthHeader},
		{"garbage", "Bearer abc", http.StatusUnauthorized, httputil.CodeInvalidToken},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, httputil.CodeTokenExpired},
		{"unknown user", "Bearer " + unknownUser, http.StatusNotFound, httputil.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp httputil.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}
