package ratelimit

import (
	"context"
	"time"
)

// Caller tiers for IP limiting
const (
	TierAnonymous     = "anonymous"
	TierAuthenticated = "authenticated"
	TierPremium       = "premium"
)

// IPTiers holds per-minute limits per caller tier. Hourly limits are ten
// times the minute limit.
type IPTiers struct {
	Anonymous     int
	Authenticated int
	Premium       int
}

// IPLimiter applies tiered minute and hour windows to client addresses.
type IPLimiter struct {
	coordinator *Coordinator
	tiers       IPTiers
}

// NewIPLimiter creates an IP limiter on top of a coordinator
func NewIPLimiter(coordinator *Coordinator, tiers IPTiers) *IPLimiter {
	return &IPLimiter{coordinator: coordinator, tiers: tiers}
}

// Windows returns the windows applied to a tier. Unknown tiers get the
// anonymous limits.
func (l *IPLimiter) Windows(tier string) []Window {
	perMinute := l.tiers.Anonymous
	switch tier {
	case TierAuthenticated:
		perMinute = l.tiers.Authenticated
	case TierPremium:
		perMinute = l.tiers.Premium
	}
	return []Window{
		{Name: WindowMinute, Limit: perMinute, Period: time.Minute},
		{Name: WindowHour, Limit: perMinute * 10, Period: time.Hour},
	}
}

// Check records one request from ip under tier.
func (l *IPLimiter) Check(ctx context.Context, ip, tier string) ([]WindowResult, error) {
	if tier != TierAuthenticated && tier != TierPremium {
		tier = TierAnonymous
	}
	return l.coordinator.CheckAll(ctx, tier+":"+ip, l.Windows(tier))
}
