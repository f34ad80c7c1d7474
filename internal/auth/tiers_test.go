package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"keyguard/internal/models"
)

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		tier      string
		superuser bool
		want      TierPolicy
	}{
		{models.TierFree, false, TierPolicy{2, 10, 100, 1000}},
		{models.TierBasic, false, TierPolicy{5, 30, 500, 5000}},
		{models.TierPremium, false, TierPolicy{20, 100, 5000, 50000}},
		{models.TierEnterprise, false, TierPolicy{20, 100, 5000, 50000}},
		{"legacy", false, TierPolicy{5, 60, 1000, 10000}},
		{models.TierFree, true, TierPolicy{100, 10, 100, 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			owner := &models.Owner{SubscriptionTier: tt.tier, IsSuperuser: tt.superuser}
			assert.Equal(t, tt.want, PolicyFor(owner))
		})
	}
}

func TestIsKnownTier(t *testing.T) {
	assert.True(t, IsKnownTier(models.TierBasic))
	assert.True(t, IsKnownTier(models.TierEnterprise))
	assert.False(t, IsKnownTier("legacy"))
	assert.False(t, IsKnownTier(""))
}
