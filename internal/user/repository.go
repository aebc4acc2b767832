package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/aveksana/referrals-api/internal/database"
)

const (
	constraintEmail        = "users_email_key"
	constraintReferralCode = "users_referral_code_key"
)

// Repository is the Postgres Store, built on bun.
type Repository struct {
	db   bun.IDB
	root *bun.DB
}

var (
	_ Store      = (*Repository)(nil)
	_ Transactor = (*Repository)(nil)
	_ Locker     = (*Repository)(nil)
)

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db, root: db}
}

// RunInTx runs fn inside a single database transaction. The Store handed to
// fn issues every statement on that transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if _, nested := r.db.(bun.Tx); nested {
		return fn(ctx, r)
	}
	return r.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Repository{db: tx, root: r.root})
	})
}

// LockUser takes a row lock on the user with SELECT ... FOR UPDATE. Outside a
// transaction the lock is released as soon as the statement completes.
func (r *Repository) LockUser(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.db.NewSelect().
		Model((*database.User)(nil)).
		Column("id").
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx, &locked)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// Create inserts a new user into the database
func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	dbUser := mapModelToDBUser(u)
	if dbUser.ID == uuid.Nil {
		dbUser.ID = uuid.New()
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		switch uniqueViolation(err) {
		case constraintEmail:
			return nil, ErrDuplicateEmail
		case constraintReferralCode:
			return nil, ErrDuplicateReferralCode
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, "email = ?", email)
}

// GetByReferralCode retrieves the owner of a referral code
func (r *Repository) GetByReferralCode(ctx context.Context, code string) (*User, error) {
	return r.getOne(ctx, "referral_code = ?", code)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where(where, arg).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

func (r *Repository) ListReferredBy(ctx context.Context, referrerID uuid.UUID) ([]*User, error) {
	var dbUsers []database.User
	err := r.db.NewSelect().
		Model(&dbUsers).
		Where("referred_by = ?", referrerID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list referred users: %w", err)
	}

	out := make([]*User, 0, len(dbUsers))
	for i := range dbUsers {
		out = append(out, mapDBUserToModel(&dbUsers[i]))
	}
	return out, nil
}

func (r *Repository) CountActivatedReferrals(ctx context.Context, referrerID uuid.UUID) (int, error) {
	count, err := r.db.NewSelect().
		Model((*database.User)(nil)).
		Where("referred_by = ?", referrerID).
		Where("referral_status = ?", string(StatusActivated)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count activated referrals: %w", err)
	}
	return count, nil
}

// UpsertActivationEvent replaces a single key of activation_events with
// jsonb_set, leaving concurrent writes to other keys intact.
func (r *Repository) UpsertActivationEvent(ctx context.Context, id uuid.UUID, name string, ev ActivationEvent) (ActivationEvents, error) {
	payload, err := json.Marshal(database.ActivationEvent(ev))
	if err != nil {
		return nil, fmt.Errorf("failed to encode activation event: %w", err)
	}

	var stored database.ActivationEvents
	err = r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("activation_events = jsonb_set(COALESCE(activation_events, '{}'::jsonb), ARRAY[?]::text[], ?::jsonb, true)", name, string(payload)).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Returning("activation_events").
		Scan(ctx, &stored)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to upsert activation event: %w", err)
	}

	return mapDBEvents(stored), nil
}

func (r *Repository) MarkActivated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, "mark activated", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("referral_status = ?", string(StatusActivated)).
			Set("activated_at = COALESCE(activated_at, ?)", at).
			Where("id = ?", id).
			Where("referral_status IS DISTINCT FROM ?", string(StatusActivated))
	})
}

func (r *Repository) LatchRewardReceived(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalUpdate(ctx, "latch reward", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("reward_received = ?", true).
			Where("id = ?", id).
			Where("reward_received = ?", false)
	})
}

func (r *Repository) LatchSuperActivation(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.conditionalUpdate(ctx, "latch super activation", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("super_activation_rewarded = ?", true).
			Set("super_activation_at = ?", at).
			Where("id = ?", id).
			Where("super_activation_rewarded = ?", false)
	})
}

// GrantMilestones merges the keys into the milestones object and bumps
// premium_months in one statement, guarded by every key still being unset.
func (r *Repository) GrantMilestones(ctx context.Context, id uuid.UUID, keys []string, months int) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}

	patch := make(map[string]bool, len(keys))
	for _, k := range keys {
		patch[k] = true
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("failed to encode milestones: %w", err)
	}

	return r.conditionalUpdate(ctx, "grant milestones", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		q = q.
			Set("milestones = COALESCE(milestones, '{}'::jsonb) || ?::jsonb", string(payload)).
			Set("premium_months = premium_months + ?", months).
			Where("id = ?", id)
		for _, k := range slices.Sorted(slices.Values(keys)) {
			q = q.Where("COALESCE((milestones->>?)::boolean, false) = false", k)
		}
		return q
	})
}

func (r *Repository) CreditSuperActivation(ctx context.Context, id uuid.UUID, credits int, badge string) error {
	changed, err := r.conditionalUpdate(ctx, "credit super activation", func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("credits = credits + ?", credits).
			Set("badges = CASE WHEN ? = ANY(badges) THEN badges ELSE array_append(badges, ?) END", badge, badge).
			Where("id = ?", id)
	})
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) IncrementProjectsSaved(ctx context.Context, id uuid.UUID) (int, error) {
	var current int
	err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("projects_saved = projects_saved + 1").
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Returning("projects_saved").
		Scan(ctx, &current)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment projects saved: %w", err)
	}
	return current - 1, nil
}

// conditionalUpdate runs an UPDATE built by build and reports whether a row changed.
func (r *Repository) conditionalUpdate(ctx context.Context, op string, build func(*bun.UpdateQuery) *bun.UpdateQuery) (bool, error) {
	q := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("updated_at = NOW()")

	result, err := build(q).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// uniqueViolation returns the violated constraint name, or "" when err is
// not a unique violation.
func uniqueViolation(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value violates unique constraint") {
		return ""
	}
	for _, c := range []string{constraintEmail, constraintReferralCode} {
		if strings.Contains(msg, c) {
			return c
		}
	}
	return ""
}

func mapModelToDBUser(u *User) *database.User {
	events := make(map[string]database.ActivationEvent, len(u.ActivationEvents))
	for k, v := range u.ActivationEvents {
		events[k] = database.ActivationEvent(v)
	}

	milestones := map[string]bool(u.Milestones)
	if milestones == nil {
		milestones = map[string]bool{}
	}

	return &database.User{
		ID:                      u.ID,
		Email:                   u.Email,
		PasswordHash:            u.PasswordHash,
		ReferralCode:            u.ReferralCode,
		ReferredBy:              u.ReferredBy,
		ReferrerEmail:           u.ReferrerEmail,
		Credits:                 u.Credits,
		PremiumMonths:           u.PremiumMonths,
		ActivationEvents:        events,
		RequiredEvents:          nonNil(u.RequiredEvents),
		ReferralStatus:          string(u.ReferralStatus),
		RewardReceived:          u.RewardReceived,
		SuperActivationRewarded: u.SuperActivationRewarded,
		Milestones:              milestones,
		Badges:                  nonNil([]string(u.Badges)),
		ProjectsSaved:           u.ProjectsSaved,
		CreatedAt:               u.CreatedAt,
		ActivatedAt:             u.ActivatedAt,
		SuperActivationAt:       u.SuperActivationAt,
		UpdatedAt:               u.UpdatedAt,
	}
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	milestones := Milestones(dbu.Milestones)
	if milestones == nil {
		milestones = Milestones{}
	}

	return &User{
		ID:                      dbu.ID,
		Email:                   dbu.Email,
		PasswordHash:            dbu.PasswordHash,
		ReferralCode:            dbu.ReferralCode,
		ReferredBy:              dbu.ReferredBy,
		ReferrerEmail:           dbu.ReferrerEmail,
		Credits:                 dbu.Credits,
		PremiumMonths:           dbu.PremiumMonths,
		ActivationEvents:        mapDBEvents(dbu.ActivationEvents),
		RequiredEvents:          dbu.RequiredEvents,
		ReferralStatus:          ReferralStatus(dbu.ReferralStatus),
		RewardReceived:          dbu.RewardReceived,
		SuperActivationRewarded: dbu.SuperActivationRewarded,
		Milestones:              milestones,
		Badges:                  BadgeSet(nonNil(dbu.Badges)),
		ProjectsSaved:           dbu.ProjectsSaved,
		CreatedAt:               dbu.CreatedAt,
		ActivatedAt:             dbu.ActivatedAt,
		SuperActivationAt:       dbu.SuperActivationAt,
		UpdatedAt:               dbu.UpdatedAt,
	}
}

func mapDBEvents(in map[string]database.ActivationEvent) ActivationEvents {
	out := make(ActivationEvents, len(in))
	for k, v := range in {
		out[k] = ActivationEvent(v)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
