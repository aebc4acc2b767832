package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aveksana/referrals-api/internal/config"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/user"
)

// EventResearchProposalCreated is the high-value event behind the super-activation bonus.
const EventResearchProposalCreated = "Research Proposal Created"

// Rules are the reward parameters of the engine.
type Rules struct {
	Tiers                  []Tier
	SignupGiftCredits      int
	SuperActivationEvent   string
	SuperActivationWindow  time.Duration
	SuperActivationCredits int
	SuperActivationBadge   string
}

func DefaultRules() Rules {
	return Rules{
		Tiers:                  DefaultTiers(),
		SignupGiftCredits:      20,
		SuperActivationEvent:   EventResearchProposalCreated,
		SuperActivationWindow:  30 * 24 * time.Hour,
		SuperActivationCredits: 50,
		SuperActivationBadge:   "Aveksana Ambassador",
	}
}

// RulesFromConfig applies the configured reward values on top of DefaultRules.
func RulesFromConfig(cfg config.ReferralConfig) Rules {
	r := DefaultRules()
	r.SignupGiftCredits = cfg.SignupGiftCredits
	r.SuperActivationWindow = cfg.SuperActivationWindow
	r.SuperActivationCredits = cfg.SuperActivationCredits
	r.SuperActivationBadge = cfg.SuperActivationBadge
	return r
}

// ActivationResult reports what a RecordActivationEvent call changed.
type ActivationResult struct {
	// Activated is true when every required event is completed, whether or
	// not this call was the one that flipped the status.
	Activated         bool     `json:"activated"`
	Rewarded          bool     `json:"rewarded"`
	MilestonesGranted []string `json:"milestonesGranted,omitempty"`
	SuperActivated    bool     `json:"superActivated"`
}

// ReferralSummary is the read-side projection of one referred user.
type ReferralSummary struct {
	ID               uuid.UUID       `json:"id"`
	Email            string          `json:"email"`
	ReferralCode     string          `json:"referralCode"`
	ReferralStatus   *string         `json:"referralStatus"`
	Completed        bool            `json:"completed"`
	Required         []string        `json:"required"`
	ActivationEvents map[string]bool `json:"activationEvents"`
}

// Invitation is what the invite landing page shows for a referral code.
type Invitation struct {
	Referrer    InvitingUser `json:"referrer"`
	GiftCredits int          `json:"giftCredits"`
}

type InvitingUser struct {
	Email        string `json:"email"`
	ReferralCode string `json:"referralCode"`
}

// Service is the referral activation engine. It keeps no state of its own;
// every reward is gated by a conditional store write that reports a change.
type Service struct {
	store  user.Store
	rules  Rules
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store user.Store, rules Rules, logger *logging.Logger) *Service {
	return &Service{
		store:  store,
		rules:  rules,
		logger: logger,
		now:    time.Now,
	}
}

// RecordActivationEvent marks eventName completed for the referred user and
// grants any rewards this call is the first to unlock.
func (s *Service) RecordActivationEvent(ctx context.Context, ref user.Ref, eventName string, props map[string]any) (*ActivationResult, error) {
	if ref.IsZero() {
		return nil, missing("referredId or referredEmail")
	}
	if eventName == "" {
		return nil, missing("eventName")
	}
	if err := user.ValidateEventName(eventName); err != nil {
		return nil, err
	}

	u, err := user.Resolve(ctx, s.store, ref)
	if err != nil {
		return nil, storeError("load referred user", err)
	}

	now := s.now().UTC()
	events, err := s.store.UpsertActivationEvent(ctx, u.ID, eventName, user.ActivationEvent{
		Completed: true,
		Props:     props,
		Timestamp: &now,
	})
	if err != nil {
		return nil, storeError("record activation event", err)
	}

	result := &ActivationResult{Activated: events.AllCompleted(u.RequiredEvents)}

	if result.Activated {
		if err := s.activate(ctx, u, now, result); err != nil {
			return nil, err
		}
	}

	if eventName == s.rules.SuperActivationEvent {
		if err := s.superActivate(ctx, u, now, result); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("activation event recorded",
		"user_id", u.ID,
		"event", eventName,
		"activated", result.Activated,
		"rewarded", result.Rewarded,
		"milestones", result.MilestonesGranted,
		"super_activated", result.SuperActivated,
	)

	return result, nil
}

// activate flips the status, then the reward latch, then evaluates the
// referrer's milestones. Each step runs only if the previous write changed
// the record.
func (s *Service) activate(ctx context.Context, u *user.User, now time.Time, result *ActivationResult) error {
	return s.runPhase(ctx, func(ctx context.Context, st user.Store) error {
		flipped, err := st.MarkActivated(ctx, u.ID, now)
		if err != nil {
			return storeError("mark activated", err)
		}
		if !flipped {
			return nil
		}

		latched, err := st.LatchRewardReceived(ctx, u.ID)
		if err != nil {
			return storeError("latch reward", err)
		}
		if !latched {
			return nil
		}
		result.Rewarded = true

		if !u.IsReferred() {
			return nil
		}

		granted, err := s.applyMilestones(ctx, st, *u.ReferredBy)
		if err != nil {
			s.logPartialReward("milestone credit", u, err)
			return err
		}
		result.MilestonesGranted = granted
		return nil
	})
}

func (s *Service) superActivate(ctx context.Context, u *user.User, now time.Time, result *ActivationResult) error {
	if !u.IsReferred() {
		return nil
	}
	if now.Sub(u.CreatedAt) > s.rules.SuperActivationWindow {
		return nil
	}

	return s.runPhase(ctx, func(ctx context.Context, st user.Store) error {
		latched, err := st.LatchSuperActivation(ctx, u.ID, now)
		if err != nil {
			return storeError("latch super activation", err)
		}
		if !latched {
			return nil
		}

		err = st.CreditSuperActivation(ctx, *u.ReferredBy, s.rules.SuperActivationCredits, s.rules.SuperActivationBadge)
		if errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("super activation referrer not found", "user_id", u.ID, "referrer_id", *u.ReferredBy)
			return nil
		}
		if err != nil {
			s.logPartialReward("super activation credit", u, err)
			return storeError("credit super activation", err)
		}

		result.SuperActivated = true
		return nil
	})
}

// applyMilestones grants every tier the referrer has crossed and not yet
// latched, as one combined write. A lost race re-reads the latches and tries
// again with what is left.
func (s *Service) applyMilestones(ctx context.Context, st user.Store, referrerID uuid.UUID) ([]string, error) {
	if locker, ok := st.(user.Locker); ok {
		if err := locker.LockUser(ctx, referrerID); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				s.logger.Warn("referrer not found", "referrer_id", referrerID)
				return nil, nil
			}
			return nil, storeError("lock referrer", err)
		}
	}

	for range len(s.rules.Tiers) + 1 {
		count, err := st.CountActivatedReferrals(ctx, referrerID)
		if err != nil {
			return nil, storeError("count activated referrals", err)
		}

		referrer, err := st.GetByID(ctx, referrerID)
		if errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("referrer not found", "referrer_id", referrerID)
			return nil, nil
		}
		if err != nil {
			return nil, storeError("load referrer", err)
		}

		keys, months := PendingTiers(s.rules.Tiers, count, referrer.Milestones)
		if len(keys) == 0 {
			return nil, nil
		}

		granted, err := st.GrantMilestones(ctx, referrerID, keys, months)
		if err != nil {
			return nil, storeError("grant milestones", err)
		}
		if granted {
			s.logger.Info("milestones granted",
				"referrer_id", referrerID,
				"activated_referrals", count,
				"milestones", keys,
				"premium_months", months,
			)
			return keys, nil
		}
	}

	s.logger.Warn("milestone grant kept losing races", "referrer_id", referrerID)
	return nil, nil
}

// runPhase runs fn in a transaction when the store supports one, otherwise
// directly against the store.
func (s *Service) runPhase(ctx context.Context, fn func(ctx context.Context, st user.Store) error) error {
	if tx, ok := s.store.(user.Transactor); ok {
		return tx.RunInTx(ctx, fn)
	}
	return fn(ctx, s.store)
}

// logPartialReward records a referred user whose latch flipped while the
// referrer credit failed. Only stores without transactions can end up here
// with the latch persisted.
func (s *Service) logPartialReward(step string, u *user.User, err error) {
	if _, ok := s.store.(user.Transactor); ok {
		return
	}
	s.logger.Error("referrer reward not applied after latch flipped",
		"step", step,
		"user_id", u.ID,
		"referrer_id", *u.ReferredBy,
		"error", err,
	)
}

// TriggerFirstProjectSignal counts a saved project and reports whether it was
// the user's first. Every call increments the counter.
func (s *Service) TriggerFirstProjectSignal(ctx context.Context, userID uuid.UUID) (bool, error) {
	prev, err := s.store.IncrementProjectsSaved(ctx, userID)
	if err != nil {
		return false, storeError("increment projects saved", err)
	}
	return prev == 0, nil
}

// ReadReferralSummary lists the users referred by referrerID.
func (s *Service) ReadReferralSummary(ctx context.Context, referrerID uuid.UUID) ([]ReferralSummary, error) {
	referred, err := s.store.ListReferredBy(ctx, referrerID)
	if err != nil {
		return nil, storeError("list referred users", err)
	}

	out := make([]ReferralSummary, 0, len(referred))
	for _, u := range referred {
		out = append(out, summarize(u))
	}
	return out, nil
}

func summarize(u *user.User) ReferralSummary {
	var status *string
	if u.ReferralStatus != user.StatusNone {
		s := string(u.ReferralStatus)
		status = &s
	}

	events := make(map[string]bool, len(u.ActivationEvents))
	for name, ev := range u.ActivationEvents {
		events[name] = ev.Completed
	}

	return ReferralSummary{
		ID:               u.ID,
		Email:            u.Email,
		ReferralCode:     u.ReferralCode,
		ReferralStatus:   status,
		Completed:        u.IsActivated(),
		Required:         u.Required(),
		ActivationEvents: events,
	}
}

// ReconcileMilestones re-evaluates the referrer's milestone tiers against the
// current activated count. It is safe to run at any time; tiers already
// latched are never granted again.
func (s *Service) ReconcileMilestones(ctx context.Context, referrerID uuid.UUID) ([]string, error) {
	if _, err := s.store.GetByID(ctx, referrerID); err != nil {
		return nil, storeError("load referrer", err)
	}

	var granted []string
	err := s.runPhase(ctx, func(ctx context.Context, st user.Store) error {
		var err error
		granted, err = s.applyMilestones(ctx, st, referrerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if granted == nil {
		granted = []string{}
	}
	return granted, nil
}

// Invite resolves a referral code to the inviting user.
func (s *Service) Invite(ctx context.Context, code string) (*Invitation, error) {
	if code == "" {
		return nil, missing("code")
	}

	referrer, err := s.store.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, storeError(fmt.Sprintf("look up referral code %q", code), err)
	}

	return &Invitation{
		Referrer: InvitingUser{
			Email:        referrer.Email,
			ReferralCode: referrer.ReferralCode,
		},
		GiftCredits: s.rules.SignupGiftCredits,
	}, nil
}
