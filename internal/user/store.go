package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound              = errors.New("user not found")
	ErrDuplicateEmail        = errors.New("email already exists")
	ErrDuplicateReferralCode = errors.New("referral code already exists")
)

// Ref identifies a user either by id or by email. The zero value refers to nobody.
type Ref struct {
	id    uuid.UUID
	email string
	kind  refKind
}

type refKind uint8

const (
	refNone refKind = iota
	refID
	refEmail
)

// ByID refers to a user by primary key.
func ByID(id uuid.UUID) Ref { return Ref{id: id, kind: refID} }

// ByEmail refers to a user by email.
func ByEmail(email string) Ref { return Ref{email: email, kind: refEmail} }

// ID returns the id and true when r was built with ByID.
func (r Ref) ID() (uuid.UUID, bool) { return r.id, r.kind == refID }

// Email returns the email and true when r was built with ByEmail.
func (r Ref) Email() (string, bool) { return r.email, r.kind == refEmail }

// IsZero reports whether r refers to nobody.
func (r Ref) IsZero() bool { return r.kind == refNone }

func (r Ref) String() string {
	switch r.kind {
	case refID:
		return "id:" + r.id.String()
	case refEmail:
		return "email:" + r.email
	default:
		return "<none>"
	}
}

// Store persists users. Every latch method is a single conditional write that
// reports whether it changed a record; callers act only on a true result.
type Store interface {
	// Create inserts u. It fails with ErrDuplicateEmail or ErrDuplicateReferralCode.
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByReferralCode(ctx context.Context, code string) (*User, error)

	// ListReferredBy returns users attributed to referrerID, oldest first.
	ListReferredBy(ctx context.Context, referrerID uuid.UUID) ([]*User, error)
	// CountActivatedReferrals counts referred users whose status is activated.
	CountActivatedReferrals(ctx context.Context, referrerID uuid.UUID) (int, error)

	// UpsertActivationEvent writes a single entry of the events map and
	// returns the map as stored after the write.
	UpsertActivationEvent(ctx context.Context, id uuid.UUID, name string, ev ActivationEvent) (ActivationEvents, error)
	// MarkActivated moves the status to activated if it is not already.
	MarkActivated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// LatchRewardReceived flips RewardReceived from false to true.
	LatchRewardReceived(ctx context.Context, id uuid.UUID) (bool, error)
	// LatchSuperActivation flips SuperActivationRewarded from false to true.
	LatchSuperActivation(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// GrantMilestones sets every key in keys and adds months to PremiumMonths,
	// only if none of the keys is already set.
	GrantMilestones(ctx context.Context, id uuid.UUID, keys []string, months int) (bool, error)
	// CreditSuperActivation adds credits and unions badge into the badge set.
	CreditSuperActivation(ctx context.Context, id uuid.UUID, credits int, badge string) error
	// IncrementProjectsSaved adds one to ProjectsSaved and returns the previous value.
	IncrementProjectsSaved(ctx context.Context, id uuid.UUID) (int, error)
}

// Transactor is implemented by stores that can run several writes atomically.
// fn receives a Store bound to the transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Locker is implemented by transactional stores that can hold a row lock on
// a user until the surrounding transaction ends.
type Locker interface {
	LockUser(ctx context.Context, id uuid.UUID) error
}

// Resolve loads the user r refers to.
func Resolve(ctx context.Context, s Store, r Ref) (*User, error) {
	if id, ok := r.ID(); ok {
		return s.GetByID(ctx, id)
	}
	if email, ok := r.Email(); ok {
		return s.GetByEmail(ctx, email)
	}
	return nil, fmt.Errorf("resolve %s: %w", r, ErrNotFound)
}
