package user_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/user"
	"github.com/aveksana/referrals-api/internal/user/usertest"
)

func newUserRouter(s user.Store) http.Handler {
	r := chi.NewRouter()
	r.Route("/users", user.NewHandler(s).Routes)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_GetByID(t *testing.T) {
	s := user.NewMemoryRepository()
	h := newUserRouter(s)
	u := usertest.MustCreate(t, s, nil)

	rec := get(t, h, "/users/"+u.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"id":"`+u.ID.String()+`","email":"`+u.Email+`","referralCode":"`+u.ReferralCode+`","credits":0,"premiumMonths":0}}`, rec.Body.String())

	for _, target := range []string{"/users/" + uuid.NewString(), "/users/not-a-uuid"} {
		rec = get(t, h, target)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{}`, rec.Body.String(), target)
	}
}

func TestHandler_GetByEmail(t *testing.T) {
	ctx := context.Background()
	s := user.NewMemoryRepository()
	h := newUserRouter(s)
	referrer := usertest.MustCreate(t, s, nil)
	referred := usertest.MustCreate(t, s, referrer)

	// signed up before referrerEmail was copied onto the user
	legacy := user.NewUser("legacy@example.com", "hash", "leg0001", referrer, 20, time.Now())
	legacy.ReferrerEmail = ""
	_, err := s.Create(ctx, legacy)
	require.NoError(t, err)

	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"denormalized", referred.Email, referrer.Email},
		{"resolved through referredBy", legacy.Email, referrer.Email},
		{"not referred", referrer.Email, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, "/users?email="+tt.email)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp user.LookupResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.User)
			assert.Equal(t, tt.email, resp.User.Email)
			assert.Equal(t, tt.want, resp.User.ReferrerEmail)
			if tt.want == "" {
				assert.Nil(t, resp.ReferrerEmail)
			} else {
				require.NotNil(t, resp.ReferrerEmail)
				assert.Equal(t, tt.want, *resp.ReferrerEmail)
			}
		})
	}

	rec := get(t, h, "/users?email=nobody@example.com")
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = get(t, h, "/users")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
