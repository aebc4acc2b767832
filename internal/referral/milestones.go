package referral

import "github.com/aveksana/referrals-api/internal/user"

// Tier is a referrer reward unlocked once Threshold referred users are activated.
type Tier struct {
	Key       string
	Threshold int
	Months    int
}

// DefaultTiers grant 1, 2 and 3 premium months at 1, 3 and 5 activated referrals.
func DefaultTiers() []Tier {
	return []Tier{
		{Key: "m1", Threshold: 1, Months: 1},
		{Key: "m3", Threshold: 3, Months: 2},
		{Key: "m5", Threshold: 5, Months: 3},
	}
}

// PendingTiers returns the keys of tiers crossed by count whose latch is not
// yet set, and the premium months they add up to.
func PendingTiers(tiers []Tier, count int, latched user.Milestones) ([]string, int) {
	var keys []string
	months := 0
	for _, t := range tiers {
		if count < t.Threshold || latched[t.Key] {
			continue
		}
		keys = append(keys, t.Key)
		months += t.Months
	}
	return keys, months
}
