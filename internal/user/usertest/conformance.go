// Package usertest holds a behavioural test suite shared by every user.Store
// implementation.
package usertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/user"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) user.Store

// NewTestUser builds a user with a unique email and referral code.
func NewTestUser(t *testing.T, referrer *user.User) *user.User {
	t.Helper()
	code, err := user.GenerateReferralCode()
	require.NoError(t, err)
	email := fmt.Sprintf("%s@example.com", uuid.NewString()[:8])
	return user.NewUser(email, "hash", code, referrer, 20, time.Now().UTC().Truncate(time.Millisecond))
}

// MustCreate inserts a fresh test user.
func MustCreate(t *testing.T, s user.Store, referrer *user.User) *user.User {
	t.Helper()
	u, err := s.Create(context.Background(), NewTestUser(t, referrer))
	require.NoError(t, err)
	return u
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndLookup", func(t *testing.T) { testCreateAndLookup(t, newStore(t)) })
	t.Run("DuplicateKeys", func(t *testing.T) { testDuplicateKeys(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("UpsertActivationEvent", func(t *testing.T) { testUpsertActivationEvent(t, newStore(t)) })
	t.Run("Latches", func(t *testing.T) { testLatches(t, newStore(t)) })
	t.Run("MarkActivatedKeepsFirstTimestamp", func(t *testing.T) { testMarkActivatedKeepsFirstTimestamp(t, newStore(t)) })
	t.Run("GrantMilestones", func(t *testing.T) { testGrantMilestones(t, newStore(t)) })
	t.Run("CreditSuperActivation", func(t *testing.T) { testCreditSuperActivation(t, newStore(t)) })
	t.Run("IncrementProjectsSaved", func(t *testing.T) { testIncrementProjectsSaved(t, newStore(t)) })
	t.Run("Referrals", func(t *testing.T) { testReferrals(t, newStore(t)) })
	t.Run("ConcurrentLatch", func(t *testing.T) { testConcurrentLatch(t, newStore(t)) })
	t.Run("ConcurrentEventUpserts", func(t *testing.T) { testConcurrentEventUpserts(t, newStore(t)) })
	t.Run("Transaction", func(t *testing.T) { testTransaction(t, newStore(t)) })
}

func testCreateAndLookup(t *testing.T, s user.Store) {
	ctx := context.Background()
	referrer := MustCreate(t, s, nil)
	u := MustCreate(t, s, referrer)

	assert.Equal(t, user.StatusNone, referrer.ReferralStatus)
	assert.Zero(t, referrer.Credits)

	byID, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)
	assert.Equal(t, u.ReferralCode, byID.ReferralCode)
	require.NotNil(t, byID.ReferredBy)
	assert.Equal(t, referrer.ID, *byID.ReferredBy)
	assert.Equal(t, referrer.Email, byID.ReferrerEmail)
	assert.Equal(t, 20, byID.Credits)
	assert.Equal(t, user.StatusPending, byID.ReferralStatus)
	assert.Equal(t, user.CanonicalRequiredEvents(), byID.RequiredEvents)
	assert.Len(t, byID.ActivationEvents, 3)
	assert.False(t, byID.ActivationEvents[user.EventProjectSaved].Completed)
	assert.Empty(t, byID.Badges)
	assert.Empty(t, byID.Milestones)

	byEmail, err := s.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byCode, err := s.GetByReferralCode(ctx, u.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byCode.ID)

	resolved, err := user.Resolve(ctx, s, user.ByEmail(u.Email))
	require.NoError(t, err)
	assert.Equal(t, u.ID, resolved.ID)
}

func testDuplicateKeys(t *testing.T, s user.Store) {
	ctx := context.Background()
	existing := MustCreate(t, s, nil)

	dupEmail := NewTestUser(t, nil)
	dupEmail.Email = existing.Email
	_, err := s.Create(ctx, dupEmail)
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)

	dupCode := NewTestUser(t, nil)
	dupCode.ReferralCode = existing.ReferralCode
	_, err = s.Create(ctx, dupCode)
	assert.ErrorIs(t, err, user.ErrDuplicateReferralCode)
}

func testNotFound(t *testing.T, s user.Store) {
	ctx := context.Background()
	missing := uuid.New()

	_, err := s.GetByID(ctx, missing)
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = s.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = s.GetByReferralCode(ctx, "zzzzzzz")
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = s.UpsertActivationEvent(ctx, missing, user.EventProjectSaved, user.ActivationEvent{Completed: true})
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = s.IncrementProjectsSaved(ctx, missing)
	assert.ErrorIs(t, err, user.ErrNotFound)
	assert.ErrorIs(t, s.CreditSuperActivation(ctx, missing, 50, "badge"), user.ErrNotFound)

	changed, err := s.LatchRewardReceived(ctx, missing)
	require.NoError(t, err)
	assert.False(t, changed)
}

func testUpsertActivationEvent(t *testing.T, s user.Store) {
	ctx := context.Background()
	u := MustCreate(t, s, nil)
	now := time.Now().UTC().Truncate(time.Millisecond)

	events, err := s.UpsertActivationEvent(ctx, u.ID, user.EventProjectSaved, user.ActivationEvent{
		Completed: true,
		Props:     map[string]any{"projectId": "p1"},
		Timestamp: &now,
	})
	require.NoError(t, err)
	assert.True(t, events[user.EventProjectSaved].Completed)
	assert.Equal(t, "p1", events[user.EventProjectSaved].Props["projectId"])
	require.NotNil(t, events[user.EventProjectSaved].Timestamp)
	assert.True(t, now.Equal(*events[user.EventProjectSaved].Timestamp))
	assert.Contains(t, events, user.EventProfileCompleted, "other keys are kept")

	events, err = s.UpsertActivationEvent(ctx, u.ID, "Custom Event", user.ActivationEvent{Completed: true})
	require.NoError(t, err)
	assert.True(t, events["Custom Event"].Completed)
	assert.True(t, events[user.EventProjectSaved].Completed)

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ActivationEvents, 4)
}

func testLatches(t *testing.T, s user.Store) {
	ctx := context.Background()
	u := MustCreate(t, s, nil)
	at := time.Now().UTC().Truncate(time.Millisecond)

	changed, err := s.MarkActivated(ctx, u.ID, at)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.MarkActivated(ctx, u.ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.LatchRewardReceived(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.LatchRewardReceived(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.LatchSuperActivation(ctx, u.ID, at)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.LatchSuperActivation(ctx, u.ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StatusActivated, stored.ReferralStatus)
	require.NotNil(t, stored.ActivatedAt)
	assert.True(t, at.Equal(*stored.ActivatedAt), "activatedAt is set once")
	assert.True(t, stored.RewardReceived)
	assert.True(t, stored.SuperActivationRewarded)
	require.NotNil(t, stored.SuperActivationAt)
	assert.True(t, at.Equal(*stored.SuperActivationAt))
}

func testMarkActivatedKeepsFirstTimestamp(t *testing.T, s user.Store) {
	ctx := context.Background()
	first := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Millisecond)

	referrer := MustCreate(t, s, nil)
	nu := NewTestUser(t, referrer)
	nu.ActivatedAt = &first
	u, err := s.Create(ctx, nu)
	require.NoError(t, err)

	changed, err := s.MarkActivated(ctx, u.ID, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, user.StatusActivated, stored.ReferralStatus)
	require.NotNil(t, stored.ActivatedAt)
	assert.True(t, first.Equal(*stored.ActivatedAt), "an existing activatedAt is kept")
}

func testGrantMilestones(t *testing.T, s user.Store) {
	ctx := context.Background()
	u := MustCreate(t, s, nil)

	changed, err := s.GrantMilestones(ctx, u.ID, []string{"m1"}, 1)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.GrantMilestones(ctx, u.ID, []string{"m1"}, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.GrantMilestones(ctx, u.ID, []string{"m1", "m3"}, 3)
	require.NoError(t, err)
	assert.False(t, changed, "any already-set key blocks the whole grant")

	changed, err = s.GrantMilestones(ctx, u.ID, []string{"m3", "m5"}, 5)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.PremiumMonths)
	assert.Equal(t, user.Milestones{"m1": true, "m3": true, "m5": true}, stored.Milestones)

	changed, err = s.GrantMilestones(ctx, u.ID, nil, 0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func testCreditSuperActivation(t *testing.T, s user.Store) {
	ctx := context.Background()
	u := MustCreate(t, s, nil)

	require.NoError(t, s.CreditSuperActivation(ctx, u.ID, 50, "Aveksana Ambassador"))
	require.NoError(t, s.CreditSuperActivation(ctx, u.ID, 50, "Aveksana Ambassador"))

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.Credits)
	assert.Equal(t, user.BadgeSet{"Aveksana Ambassador"}, stored.Badges)
}

func testIncrementProjectsSaved(t *testing.T, s user.Store) {
	ctx := context.Background()
	u := MustCreate(t, s, nil)

	prev, err := s.IncrementProjectsSaved(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, prev)

	prev, err = s.IncrementProjectsSaved(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, prev)
}

func testReferrals(t *testing.T, s user.Store) {
	ctx := context.Background()
	referrer := MustCreate(t, s, nil)
	other := MustCreate(t, s, nil)

	var referred []*user.User
	for range 3 {
		referred = append(referred, MustCreate(t, s, referrer))
	}
	MustCreate(t, s, other)

	list, err := s.ListReferredBy(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	ids := make([]uuid.UUID, 0, len(list))
	for _, u := range list {
		ids = append(ids, u.ID)
	}
	for _, u := range referred {
		assert.Contains(t, ids, u.ID)
	}

	n, err := s.CountActivatedReferrals(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.MarkActivated(ctx, referred[0].ID, time.Now())
	require.NoError(t, err)
	_, err = s.MarkActivated(ctx, referred[2].ID, time.Now())
	require.NoError(t, err)

	n, err = s.CountActivatedReferrals(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty, err := s.ListReferredBy(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testConcurrentLatch(t *testing.T, s user.Store) {
	ctx := context.Background()
	u := MustCreate(t, s, nil)

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := s.LatchRewardReceived(ctx, u.ID)
			assert.NoError(t, err)
			if changed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func testConcurrentEventUpserts(t *testing.T, s user.Store) {
	ctx := context.Background()
	u := MustCreate(t, s, nil)

	var wg sync.WaitGroup
	for _, name := range u.Required() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertActivationEvent(ctx, u.ID, name, user.ActivationEvent{Completed: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.ActivationEvents.AllCompleted(stored.RequiredEvents), "no write is lost")
}

func testTransaction(t *testing.T, s user.Store) {
	tx, ok := s.(user.Transactor)
	if !ok {
		t.Skip("store does not support transactions")
	}

	ctx := context.Background()
	u := MustCreate(t, s, nil)
	rollback := errors.New("rollback")

	err := tx.RunInTx(ctx, func(ctx context.Context, txs user.Store) error {
		changed, err := txs.LatchRewardReceived(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, changed)
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.RewardReceived, "latch is rolled back with the transaction")

	err = tx.RunInTx(ctx, func(ctx context.Context, txs user.Store) error {
		_, err := txs.LatchRewardReceived(ctx, u.ID)
		return err
	})
	require.NoError(t, err)

	stored, err = s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.RewardReceived)
}
