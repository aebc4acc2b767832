package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/app"
	"github.com/aveksana/referrals-api/internal/config"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/user"
)

type harness struct {
	store    *user.MemoryRepository
	referrer *user.User
	referred *user.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := user.NewMemoryRepository()
	now := time.Now().UTC()

	r, err := store.Create(ctx, user.NewUser("referrer@example.com", "hash", "REFCODE1", nil, 20, now))
	require.NoError(t, err)
	s, err := store.Create(ctx, user.NewUser("referred@example.com", "hash", "REFCODE2", r, 20, now))
	require.NoError(t, err)

	return &harness{store: store, referrer: r, referred: s}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	d := deps{
		loadConfig: func() (*config.Config, error) {
			return &config.Config{
				Store: config.StoreConfig{Driver: config.StoreMemory},
				Referral: config.ReferralConfig{
					SignupGiftCredits:      20,
					SuperActivationWindow:  30 * 24 * time.Hour,
					SuperActivationCredits: 50,
					SuperActivationBadge:   "Aveksana Ambassador",
				},
			}, nil
		},
		openStore: func(context.Context, *config.Config, *logging.Logger) (*app.Store, error) {
			return &app.Store{Users: h.store, Close: func() error { return nil }}, nil
		},
		logger: logging.NewNopLogger(),
	}

	var out bytes.Buffer
	cmd := newRootCmd(d)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRecordEventCmd(t *testing.T) {
	h := newHarness(t)

	for _, ev := range user.CanonicalRequiredEvents() {
		_, err := h.run(t, "record-event", "--email", h.referred.Email, "--event", ev)
		require.NoError(t, err)
	}

	out, err := h.run(t, "record-event", "--id", h.referred.ID.String(), "--event", user.EventProjectSaved)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["activated"])
	assert.Equal(t, false, result["rewarded"])

	referrer, err := h.store.GetByID(context.Background(), h.referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, referrer.PremiumMonths)
}

func TestRecordEventCmd_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "record-event", "--event", user.EventProjectSaved)
	assert.Error(t, err)

	_, err = h.run(t, "record-event", "--id", "nope", "--event", user.EventProjectSaved)
	assert.Error(t, err)

	_, err = h.run(t, "record-event", "--email", h.referred.Email)
	assert.Error(t, err)

	_, err = h.run(t, "record-event", "--id", uuid.NewString(), "--event", user.EventProjectSaved)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestSummaryCmd(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "summary", "--id", h.referrer.ID.String())
	require.NoError(t, err)

	var got struct {
		Referrals []struct {
			ID             string  `json:"id"`
			ReferralStatus *string `json:"referralStatus"`
			Completed      bool    `json:"completed"`
		} `json:"referrals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Referrals, 1)
	assert.Equal(t, h.referred.ID.String(), got.Referrals[0].ID)
	require.NotNil(t, got.Referrals[0].ReferralStatus)
	assert.Equal(t, "pending", *got.Referrals[0].ReferralStatus)
	assert.False(t, got.Referrals[0].Completed)

	_, err = h.run(t, "summary")
	assert.Error(t, err)
}

func TestReconcileCmd(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.MarkActivated(context.Background(), h.referred.ID, time.Now())
	require.NoError(t, err)

	out, err := h.run(t, "reconcile", "--id", h.referrer.ID.String())
	require.NoError(t, err)
	assert.JSONEq(t, `{"granted":["m1"]}`, out)

	out, err = h.run(t, "reconcile", "--id", h.referrer.ID.String())
	require.NoError(t, err)
	assert.JSONEq(t, `{"granted":[]}`, out)
}

func TestMigrateCmd_RequiresPostgres(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "migrate")
	assert.ErrorContains(t, err, "postgres")
}
