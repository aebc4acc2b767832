package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivationEvent is the JSONB representation of one activation event.
type ActivationEvent struct {
	Completed bool           `json:"completed"`
	Props     map[string]any `json:"props,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// ActivationEvents scans a JSONB activation_events value returned by a query.
type ActivationEvents map[string]ActivationEvent

func (e *ActivationEvents) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = ActivationEvents{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("activation events: unsupported scan type %T", src)
	}
	out := ActivationEvents{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("activation events: %w", err)
	}
	*e = out
	return nil
}

// User maps the users table.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	Email         string     `bun:"email,notnull"`
	PasswordHash  string     `bun:"password_hash,notnull"`
	ReferralCode  string     `bun:"referral_code,notnull"`
	ReferredBy    *uuid.UUID `bun:"referred_by,type:uuid"`
	ReferrerEmail string     `bun:"referrer_email,nullzero"`

	Credits       int `bun:"credits,notnull"`
	PremiumMonths int `bun:"premium_months,notnull"`

	ActivationEvents map[string]ActivationEvent `bun:"activation_events,type:jsonb,notnull"`
	RequiredEvents   []string                   `bun:"required_events,array,notnull"`
	ReferralStatus   string                     `bun:"referral_status,nullzero"`

	RewardReceived          bool            `bun:"reward_received,notnull"`
	SuperActivationRewarded bool            `bun:"super_activation_rewarded,notnull"`
	Milestones              map[string]bool `bun:"milestones,type:jsonb,notnull"`
	Badges                  []string        `bun:"badges,array,notnull"`
	ProjectsSaved           int             `bun:"projects_saved,notnull"`

	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ActivatedAt       *time.Time `bun:"activated_at"`
	SuperActivationAt *time.Time `bun:"super_activation_at"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
