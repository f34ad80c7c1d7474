package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ScopeWildcard satisfies every required scope.
const ScopeWildcard = "*"

// APIKey represents an issued API key. The raw secret is never stored.
type APIKey struct {
	ID          uuid.UUID      `db:"id"`
	OwnerID     uuid.UUID      `db:"owner_id"`
	Name        string         `db:"name"`
	Description *string        `db:"description"`
	KeyHash     string         `db:"key_hash"`   // SHA-256 hash
	KeyPrefix   string         `db:"key_prefix"` // first 8 chars, display only
	Scopes      pq.StringArray `db:"scopes"`
	IsActive    bool           `db:"is_active"`
	ExpiresAt   *time.Time     `db:"expires_at"` // NULL = never

	RateLimitPerMinute int `db:"rate_limit_per_minute"`
	RateLimitPerHour   int `db:"rate_limit_per_hour"`
	RateLimitPerDay    int `db:"rate_limit_per_day"`

	// Usage counters, mirrored into Redis by the key manager
	TotalRequests      int64      `db:"total_requests"`
	RequestsToday      int64      `db:"requests_today"`
	RequestsThisHour   int64      `db:"requests_this_hour"`
	RequestsThisMinute int64      `db:"requests_this_minute"`
	LastUsedAt         *time.Time `db:"last_used_at"`
	LastUsedIP         *string    `db:"last_used_ip"`
	LastUserAgent      *string    `db:"last_user_agent"`

	Metadata  Metadata  `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasScope reports whether the key grants scope, directly or through the wildcard.
func (k *APIKey) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, ScopeWildcard) || slices.Contains(k.Scopes, scope)
}

// IsExpired checks if the key has expired
func (k *APIKey) IsExpired() bool {
	return k.IsExpiredAt(time.Now())
}

// IsExpiredAt checks expiration against the given instant
func (k *APIKey) IsExpiredAt(now time.Time) bool {
	if k.ExpiresAt == nil {
		return false
	}
	return now.After(*k.ExpiresAt)
}

// IsValid checks if the key is usable (active and not expired)
func (k *APIKey) IsValid() bool {
	return k.IsActive && !k.IsExpired()
}

// ApplyUsage records one admitted request at the given instant. Windowed
// counters restart at 1 when the request falls in a later bucket than the
// previous one.
func (k *APIKey) ApplyUsage(at time.Time, ip, userAgent string) {
	at = at.UTC()
	k.TotalRequests++
	k.RequestsThisMinute = bump(k.RequestsThisMinute, k.LastUsedAt, at, time.Minute)
	k.RequestsThisHour = bump(k.RequestsThisHour, k.LastUsedAt, at, time.Hour)
	k.RequestsToday = bump(k.RequestsToday, k.LastUsedAt, at, 24*time.Hour)

	k.LastUsedAt = &at
	if ip != "" {
		k.LastUsedIP = &ip
	}
	if userAgent != "" {
		k.LastUserAgent = &userAgent
	}
}

// ResetWindowCounters zeroes the minute, hour and day counters.
func (k *APIKey) ResetWindowCounters() {
	k.RequestsThisMinute = 0
	k.RequestsThisHour = 0
	k.RequestsToday = 0
}

// ClearLastUsed forgets where and when the key was last seen.
func (k *APIKey) ClearLastUsed() {
	k.LastUsedAt = nil
	k.LastUsedIP = nil
	k.LastUserAgent = nil
}

func bump(current int64, last *time.Time, at time.Time, bucket time.Duration) int64 {
	if last == nil || !last.UTC().Truncate(bucket).Equal(at.Truncate(bucket)) {
		return 1
	}
	return current + 1
}
