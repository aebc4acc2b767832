package user

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Store. Each method holds the lock for
// its whole read-modify-write, which gives it the same single-document
// atomicity as the database stores.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

var _ Store = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[uuid.UUID]*User)}
}

func (r *MemoryRepository) Create(_ context.Context, u *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil, ErrDuplicateEmail
		}
		if existing.ReferralCode == u.ReferralCode {
			return nil, ErrDuplicateReferralCode
		}
	}

	stored := cloneUser(u)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.users[stored.ID] = stored

	return cloneUser(stored), nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	return r.findOne(func(u *User) bool { return u.Email == email })
}

func (r *MemoryRepository) GetByReferralCode(_ context.Context, code string) (*User, error) {
	return r.findOne(func(u *User) bool { return u.ReferralCode == code })
}

func (r *MemoryRepository) findOne(match func(*User) bool) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListReferredBy(_ context.Context, referrerID uuid.UUID) ([]*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*User
	for _, u := range r.users {
		if u.ReferredBy != nil && *u.ReferredBy == referrerID {
			out = append(out, cloneUser(u))
		}
	}
	slices.SortFunc(out, func(a, b *User) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CountActivatedReferrals(_ context.Context, referrerID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, u := range r.users {
		if u.ReferredBy != nil && *u.ReferredBy == referrerID && u.ReferralStatus == StatusActivated {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) UpsertActivationEvent(_ context.Context, id uuid.UUID, name string, ev ActivationEvent) (ActivationEvents, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if u.ActivationEvents == nil {
		u.ActivationEvents = ActivationEvents{}
	}
	u.ActivationEvents[name] = cloneEvent(ev)
	u.UpdatedAt = time.Now()

	return cloneEvents(u.ActivationEvents), nil
}

func (r *MemoryRepository) MarkActivated(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.latch(id, func(u *User) bool {
		if u.ReferralStatus == StatusActivated {
			return false
		}
		u.ReferralStatus = StatusActivated
		if u.ActivatedAt == nil {
			u.ActivatedAt = &at
		}
		return true
	})
}

func (r *MemoryRepository) LatchRewardReceived(_ context.Context, id uuid.UUID) (bool, error) {
	return r.latch(id, func(u *User) bool {
		if u.RewardReceived {
			return false
		}
		u.RewardReceived = true
		return true
	})
}

func (r *MemoryRepository) LatchSuperActivation(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.latch(id, func(u *User) bool {
		if u.SuperActivationRewarded {
			return false
		}
		u.SuperActivationRewarded = true
		u.SuperActivationAt = &at
		return true
	})
}

func (r *MemoryRepository) GrantMilestones(_ context.Context, id uuid.UUID, keys []string, months int) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	return r.latch(id, func(u *User) bool {
		for _, k := range keys {
			if u.Milestones[k] {
				return false
			}
		}
		if u.Milestones == nil {
			u.Milestones = Milestones{}
		}
		for _, k := range keys {
			u.Milestones[k] = true
		}
		u.PremiumMonths += months
		return true
	})
}

func (r *MemoryRepository) CreditSuperActivation(_ context.Context, id uuid.UUID, credits int, badge string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Credits += credits
	u.Badges, _ = u.Badges.Add(badge)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) IncrementProjectsSaved(_ context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	prev := u.ProjectsSaved
	u.ProjectsSaved++
	u.UpdatedAt = time.Now()
	return prev, nil
}

// latch applies fn under the lock. A missing user is reported as unchanged.
func (r *MemoryRepository) latch(id uuid.UUID, fn func(*User) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	changed := fn(u)
	if changed {
		u.UpdatedAt = time.Now()
	}
	return changed, nil
}

func cloneUser(u *User) *User {
	c := *u
	c.ActivationEvents = cloneEvents(u.ActivationEvents)
	c.RequiredEvents = slices.Clone(u.RequiredEvents)
	c.Milestones = maps.Clone(u.Milestones)
	c.Badges = slices.Clone(u.Badges)
	if u.ReferredBy != nil {
		id := *u.ReferredBy
		c.ReferredBy = &id
	}
	return &c
}

func cloneEvents(e ActivationEvents) ActivationEvents {
	if e == nil {
		return nil
	}
	out := make(ActivationEvents, len(e))
	for k, v := range e {
		out[k] = cloneEvent(v)
	}
	return out
}

func cloneEvent(ev ActivationEvent) ActivationEvent {
	ev.Props = maps.Clone(ev.Props)
	return ev
}
