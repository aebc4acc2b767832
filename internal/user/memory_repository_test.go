package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveksana/referrals-api/internal/user"
	"github.com/aveksana/referrals-api/internal/user/usertest"
)

func TestMemoryRepository(t *testing.T) {
	usertest.Run(t, func(t *testing.T) user.Store {
		return user.NewMemoryRepository()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := user.NewMemoryRepository()
	u := usertest.MustCreate(t, s, nil)

	u.Badges = append(u.Badges, "mutated")
	u.ActivationEvents[user.EventProjectSaved] = user.ActivationEvent{Completed: true}

	stored, err := s.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Badges)
	assert.False(t, stored.ActivationEvents[user.EventProjectSaved].Completed)
}
