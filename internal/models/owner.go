package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription tiers
const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
)

// Owner is the account that owns API keys.
// Authentication is email/password based with Argon2 password hashing
type Owner struct {
	ID               uuid.UUID  `db:"id"`
	Email            string     `db:"email"`
	PasswordHash     string     `db:"password_hash"` // Argon2 hash
	SubscriptionTier string     `db:"subscription_tier"`
	IsActive         bool       `db:"is_active"`
	IsSuperuser      bool       `db:"is_superuser"`
	LastLoginAt      *time.Time `db:"last_login_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// IsPremium checks whether the owner is on a paid high-volume tier
func (o *Owner) IsPremium() bool {
	return o.SubscriptionTier == TierPremium || o.SubscriptionTier == TierEnterprise
}

// CanManage reports whether the owner may act on a key owned by ownerID.
func (o *Owner) CanManage(ownerID uuid.UUID) bool {
	return o.IsSuperuser || o.ID == ownerID
}
