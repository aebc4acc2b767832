package user

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Canonical activation events. A referred user is activated once every
// event in its RequiredEvents list has been completed.
const (
	EventProfileCompleted        = "Profile Completed"
	EventProjectSaved            = "Project Saved"
	EventLiteratureMatrixCreated = "Literature Matrix Created"
)

// CanonicalRequiredEvents returns the default activation requirements.
// A fresh slice is returned on every call.
func CanonicalRequiredEvents() []string {
	return []string{EventProfileCompleted, EventProjectSaved, EventLiteratureMatrixCreated}
}

var ErrInvalidEventName = errors.New("invalid event name")

// ValidateEventName rejects names that cannot be used as a document key.
func ValidateEventName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEventName)
	}
	if strings.Contains(name, ".") || strings.HasPrefix(name, "$") {
		return fmt.Errorf("%w: %q", ErrInvalidEventName, name)
	}
	return nil
}

// ReferralStatus tracks a referred user's progress. It only ever moves
// forward: "" (not referred) or pending, then activated.
type ReferralStatus string

const (
	StatusNone      ReferralStatus = ""
	StatusPending   ReferralStatus = "pending"
	StatusActivated ReferralStatus = "activated"
)

// ActivationEvent is a single entry of User.ActivationEvents.
type ActivationEvent struct {
	Completed bool           `json:"completed" bson:"completed"`
	Props     map[string]any `json:"props,omitempty" bson:"props,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// ActivationEvents maps event names to their state.
type ActivationEvents map[string]ActivationEvent

// AllCompleted reports whether every required event is completed.
// An empty required list means the canonical list.
func (e ActivationEvents) AllCompleted(required []string) bool {
	if len(required) == 0 {
		required = CanonicalRequiredEvents()
	}
	for _, name := range required {
		if !e[name].Completed {
			return false
		}
	}
	return true
}

// Milestones maps a tier key (m1, m3, m5) to its latch.
type Milestones map[string]bool

// BadgeSet is an unordered set of badge names. Adding an existing badge is a no-op.
type BadgeSet []string

// Has reports whether the set contains badge.
func (b BadgeSet) Has(badge string) bool {
	return slices.Contains(b, badge)
}

// Add returns the set with badge included and whether it was newly added.
func (b BadgeSet) Add(badge string) (BadgeSet, bool) {
	if b.Has(badge) {
		return b, false
	}
	return append(b, badge), true
}

type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"` // Never expose password hash in JSON
	ReferralCode  string     `json:"referralCode"`
	ReferredBy    *uuid.UUID `json:"referredBy,omitempty"`
	ReferrerEmail string     `json:"referrerEmail,omitempty"`

	Credits       int `json:"credits"`
	PremiumMonths int `json:"premiumMonths"`

	ActivationEvents ActivationEvents `json:"activationEvents"`
	RequiredEvents   []string         `json:"requiredEvents"`
	ReferralStatus   ReferralStatus   `json:"referralStatus,omitempty"`

	RewardReceived          bool       `json:"rewardReceived"`
	SuperActivationRewarded bool       `json:"superActivationRewarded"`
	Milestones              Milestones `json:"milestones"`
	Badges                  BadgeSet   `json:"badges"`
	ProjectsSaved           int        `json:"projectsSaved"`

	CreatedAt         time.Time  `json:"createdAt"`
	ActivatedAt       *time.Time `json:"activatedAt,omitempty"`
	SuperActivationAt *time.Time `json:"superActivationAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsReferred reports whether the user signed up through a referral code.
func (u *User) IsReferred() bool {
	return u.ReferredBy != nil
}

// Required returns the user's activation requirements, defaulting to the canonical list.
func (u *User) Required() []string {
	if len(u.RequiredEvents) == 0 {
		return CanonicalRequiredEvents()
	}
	return u.RequiredEvents
}

// IsActivated reports whether the user has reached the activated state by
// any of the signals the system records.
func (u *User) IsActivated() bool {
	return u.ReferralStatus == StatusActivated ||
		u.ActivatedAt != nil ||
		u.RewardReceived ||
		u.ActivationEvents.AllCompleted(u.RequiredEvents)
}

// NewUser builds a user ready for Store.Create. When referrer is non-nil the
// user is attributed to it and starts with giftCredits.
func NewUser(email, passwordHash, referralCode string, referrer *User, giftCredits int, now time.Time) *User {
	required := CanonicalRequiredEvents()
	events := make(ActivationEvents, len(required))
	for _, name := range required {
		events[name] = ActivationEvent{Completed: false}
	}

	u := &User{
		ID:               uuid.New(),
		Email:            email,
		PasswordHash:     passwordHash,
		ReferralCode:     referralCode,
		ActivationEvents: events,
		RequiredEvents:   required,
		Milestones:       Milestones{},
		Badges:           BadgeSet{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if referrer != nil {
		id := referrer.ID
		u.ReferredBy = &id
		u.ReferrerEmail = referrer.Email
		u.Credits = giftCredits
		u.ReferralStatus = StatusPending
	}

	return u
}

const (
	referralCodeLen      = 7
	referralCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateReferralCode returns a random 7 character base36 code.
func GenerateReferralCode() (string, error) {
	var sb strings.Builder
	sb.Grow(referralCodeLen)
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	for range referralCodeLen {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		sb.WriteByte(referralCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
