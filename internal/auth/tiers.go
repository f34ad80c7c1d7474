package auth

import "keyguard/internal/models"

// TierPolicy holds the per-tier defaults applied at key creation
type TierPolicy struct {
	MaxActiveKeys int
	PerMinute     int
	PerHour       int
	PerDay        int
}

const superuserMaxActiveKeys = 100

var (
	tierPolicies = map[string]TierPolicy{
		models.TierFree:       {MaxActiveKeys: 2, PerMinute: 10, PerHour: 100, PerDay: 1000},
		models.TierBasic:      {MaxActiveKeys: 5, PerMinute: 30, PerHour: 500, PerDay: 5000},
		models.TierPremium:    {MaxActiveKeys: 20, PerMinute: 100, PerHour: 5000, PerDay: 50000},
		models.TierEnterprise: {MaxActiveKeys: 20, PerMinute: 100, PerHour: 5000, PerDay: 50000},
	}

	defaultTierPolicy = TierPolicy{MaxActiveKeys: 5, PerMinute: 60, PerHour: 1000, PerDay: 10000}
)

// PolicyFor returns the policy for an owner. Superusers keep their tier's
// default limits but may hold more keys.
func PolicyFor(owner *models.Owner) TierPolicy {
	policy, ok := tierPolicies[owner.SubscriptionTier]
	if !ok {
		policy = defaultTierPolicy
	}
	if owner.IsSuperuser {
		policy.MaxActiveKeys = superuserMaxActiveKeys
	}
	return policy
}

// IsKnownTier reports whether tier has its own policy
func IsKnownTier(tier string) bool {
	_, ok := tierPolicies[tier]
	return ok
}
