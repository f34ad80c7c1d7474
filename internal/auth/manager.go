package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keyguard/internal/metrics"
	"keyguard/internal/models"
	"keyguard/internal/ratelimit"
	"keyguard/internal/storage"
	"keyguard/internal/utils"
)

// KeyStore is the durable API key store
type KeyStore interface {
	// Create and Update fail with storage.ErrActiveKeyLimit when the owner
	// would exceed maxActive active keys. Zero disables the cap.
	Create(ctx context.Context, key *models.APIKey, maxActive int) error
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	List(ctx context.Context, filter storage.KeyFilter) ([]*models.APIKey, int, error)
	CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
	NameExists(ctx context.Context, ownerID uuid.UUID, name string, excludeID uuid.UUID) (bool, error)
	Update(ctx context.Context, key *models.APIKey, maxActive int) error
	Rotate(ctx context.Context, id uuid.UUID, keyHash, keyPrefix string) (*models.APIKey, error)
	RecordUsage(ctx context.Context, id uuid.UUID, at time.Time, ip, userAgent string) (*models.APIKey, error)
	ResetUsage(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// OwnerStore is the durable owner account store
type OwnerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Owner, error)
	GetByEmail(ctx context.Context, email string) (*models.Owner, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Validation bounds
const (
	maxNameLength        = 255
	maxDescriptionLength = 1000
	minExpiresDays       = 1
	maxExpiresDays       = 365
	maxPerMinute         = 10000
	maxPerHour           = 100000
	maxPerDay            = 1000000

	defaultPageSize = 20
	maxPageSize     = 100

	// UsageKeyPrefix namespaces the Redis usage mirror
	UsageKeyPrefix = "api_key_usage"

	generateAttempts = 3
)

// Validation outcomes reported to metrics
const (
	outcomeOK            = "ok"
	outcomeInvalidFormat = "invalid_format"
	outcomeNotFound      = "not_found"
	outcomeInactive      = "inactive"
	outcomeExpired       = "expired"
	outcomeScope         = "insufficient_scope"
	outcomeRateLimited   = "rate_limited"
	outcomeError         = "error"
)

type mirrorWindow struct {
	name string
	ttl  time.Duration
}

var mirrorWindows = []mirrorWindow{
	{ratelimit.WindowMinute, time.Minute},
	{ratelimit.WindowHour, time.Hour},
	{ratelimit.WindowDay, 24 * time.Hour},
}

// incrementScript bumps each mirror counter and starts its TTL on first use,
// so a counter covers a fixed span from its first request.
var incrementScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	if redis.call('INCR', key) == 1 then
		redis.call('EXPIRE', key, ARGV[i])
	end
end
return 1
`)

// CreateKeyParams describes a new key. Nil fields take tier defaults.
type CreateKeyParams struct {
	Name               string          `json:"name"`
	Description        *string         `json:"description,omitempty"`
	Scopes             []string        `json:"scopes,omitempty"`
	ExpiresInDays      *int            `json:"expires_in_days,omitempty"`
	RateLimitPerMinute *int            `json:"rate_limit_per_minute,omitempty"`
	RateLimitPerHour   *int            `json:"rate_limit_per_hour,omitempty"`
	RateLimitPerDay    *int            `json:"rate_limit_per_day,omitempty"`
	Metadata           models.Metadata `json:"metadata,omitempty"`
}

// UpdateKeyParams changes a key. Nil fields are left untouched.
type UpdateKeyParams struct {
	Name               *string         `json:"name,omitempty"`
	Description        *string         `json:"description,omitempty"`
	Scopes             []string        `json:"scopes,omitempty"`
	IsActive           *bool           `json:"is_active,omitempty"`
	RateLimitPerMinute *int            `json:"rate_limit_per_minute,omitempty"`
	RateLimitPerHour   *int            `json:"rate_limit_per_hour,omitempty"`
	RateLimitPerDay    *int            `json:"rate_limit_per_day,omitempty"`
	Metadata           models.Metadata `json:"metadata,omitempty"`
}

// ListOptions pages through keys. Page is 1-based.
type ListOptions struct {
	Page            int
	PageSize        int
	IncludeInactive bool
}

// KeyPage is one page of a key listing
type KeyPage struct {
	Keys     []*models.APIKey
	Total    int
	Page     int
	PageSize int
}

// ValidateOptions tune a single validation
type ValidateOptions struct {
	RequiredScope string
	SkipRateLimit bool
}

// Principal is the result of a successful validation
type Principal struct {
	Key    *models.APIKey
	Owner  *models.Owner
	Limits []ratelimit.WindowResult
}

// Usage is a snapshot of a key's request counters
type Usage struct {
	TotalRequests      int64      `json:"total_requests"`
	RequestsThisMinute int64      `json:"requests_this_minute"`
	RequestsThisHour   int64      `json:"requests_this_hour"`
	RequestsToday      int64      `json:"requests_today"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
	Source             string     `json:"source"` // "redis" or "database"
}

// Manager issues, validates and administers API keys
type Manager struct {
	keys        KeyStore
	owners      OwnerStore
	coordinator *ratelimit.Coordinator
	redis       redis.UniversalClient
	metrics     metrics.Metrics
	logger      *utils.Logger
	now         func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithUsageMirror enables the Redis usage counters
func WithUsageMirror(client redis.UniversalClient) Option {
	return func(m *Manager) {
		m.redis = client
	}
}

// WithMetrics records validation outcomes
func WithMetrics(mt metrics.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a key manager. A nil coordinator disables rate limiting.
func NewManager(keys KeyStore, owners OwnerStore, coordinator *ratelimit.Coordinator, opts ...Option) *Manager {
	if coordinator == nil {
		coordinator = ratelimit.NewCoordinator(ratelimit.NewNoopLimiter(), "api_key", nil)
	}

	m := &Manager{
		keys:        keys,
		owners:      owners,
		coordinator: coordinator,
		metrics:     metrics.NewNoopMetrics(),
		logger:      utils.NewLogger("auth"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create issues a new key for owner. The raw key is returned only here.
func (m *Manager) Create(ctx context.Context, owner *models.Owner, params CreateKeyParams) (string, *models.APIKey, error) {
	policy := PolicyFor(owner)

	name, err := validateName(params.Name)
	if err != nil {
		return "", nil, err
	}
	if err := validateDescription(params.Description); err != nil {
		return "", nil, err
	}
	scopes, err := normalizeScopes(params.Scopes)
	if err != nil {
		return "", nil, err
	}

	perMinute, err := limitOrDefault("rate_limit_per_minute", params.RateLimitPerMinute, policy.PerMinute, maxPerMinute)
	if err != nil {
		return "", nil, err
	}
	perHour, err := limitOrDefault("rate_limit_per_hour", params.RateLimitPerHour, policy.PerHour, maxPerHour)
	if err != nil {
		return "", nil, err
	}
	perDay, err := limitOrDefault("rate_limit_per_day", params.RateLimitPerDay, policy.PerDay, maxPerDay)
	if err != nil {
		return "", nil, err
	}

	var expiresAt *time.Time
	if params.ExpiresInDays != nil {
		days := *params.ExpiresInDays
		if days < minExpiresDays || days > maxExpiresDays {
			return "", nil, &ValidationError{Field: "expires_in_days", Message: fmt.Sprintf("must be between %d and %d", minExpiresDays, maxExpiresDays)}
		}
		at := m.now().UTC().Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &at
	}

	active, err := m.keys.CountActiveByOwner(ctx, owner.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to count keys: %w", err)
	}
	if active >= policy.MaxActiveKeys {
		return "", nil, &MaxKeysError{Max: policy.MaxActiveKeys}
	}

	exists, err := m.keys.NameExists(ctx, owner.ID, name, uuid.Nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to check key name: %w", err)
	}
	if exists {
		return "", nil, ErrDuplicateName
	}

	for attempt := 1; ; attempt++ {
		raw, err := GenerateKey()
		if err != nil {
			return "", nil, err
		}

		key := &models.APIKey{
			ID:                 uuid.New(),
			OwnerID:            owner.ID,
			Name:               name,
			Description:        params.Description,
			KeyHash:            HashKey(raw),
			KeyPrefix:          DisplayPrefix(raw),
			Scopes:             scopes,
			IsActive:           true,
			ExpiresAt:          expiresAt,
			RateLimitPerMinute: perMinute,
			RateLimitPerHour:   perHour,
			RateLimitPerDay:    perDay,
			Metadata:           params.Metadata,
		}

		err = m.keys.Create(ctx, key, policy.MaxActiveKeys)
		switch {
		case err == nil:
			m.logger.Info("API key created", "key_id", key.ID, "owner_id", owner.ID, "prefix", key.KeyPrefix)
			return raw, key, nil
		case errors.Is(err, storage.ErrActiveKeyLimit):
			return "", nil, &MaxKeysError{Max: policy.MaxActiveKeys}
		case errors.Is(err, storage.ErrDuplicateKeyName):
			return "", nil, ErrDuplicateName
		case errors.Is(err, storage.ErrDuplicateKeyHash) && attempt < generateAttempts:
			continue
		default:
			return "", nil, fmt.Errorf("failed to create key: %w", err)
		}
	}
}

// Validate authenticates a raw key. Checks run in a fixed order: format,
// lookup, active, expiry, scope, then rate limits. Usage is not recorded.
func (m *Manager) Validate(ctx context.Context, raw string, opts ValidateOptions) (*Principal, error) {
	principal, outcome, err := m.validate(ctx, raw, opts)
	m.metrics.RecordValidation(outcome)
	return principal, err
}

func (m *Manager) validate(ctx context.Context, raw string, opts ValidateOptions) (*Principal, string, error) {
	if !ValidateFormat(raw) {
		return nil, outcomeInvalidFormat, ErrInvalidFormat
	}

	key, err := m.keys.GetByHash(ctx, HashKey(raw))
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, outcomeNotFound, ErrKeyNotFound
		}
		m.logger.Error("Key lookup failed", "error", err)
		return nil, outcomeError, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	owner, err := m.owners.GetByID(ctx, key.OwnerID)
	if err != nil {
		if errors.Is(err, storage.ErrOwnerNotFound) {
			return nil, outcomeNotFound, ErrKeyNotFound
		}
		m.logger.Error("Owner lookup failed", "key_id", key.ID, "error", err)
		return nil, outcomeError, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if !owner.IsActive {
		return nil, outcomeNotFound, ErrKeyNotFound
	}

	if !key.IsActive {
		return nil, outcomeInactive, ErrKeyInactive
	}
	if key.IsExpiredAt(m.now()) {
		return nil, outcomeExpired, ErrKeyExpired
	}
	if opts.RequiredScope != "" && !key.HasScope(opts.RequiredScope) {
		return nil, outcomeScope, &ScopeError{Required: opts.RequiredScope}
	}

	principal := &Principal{Key: key, Owner: owner}
	if opts.SkipRateLimit {
		return principal, outcomeOK, nil
	}

	results, err := m.coordinator.CheckAll(ctx, key.ID.String(), keyWindows(key))
	principal.Limits = results

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		return nil, outcomeRateLimited, &RateLimitError{
			Window:     exceeded.Window,
			Limit:      exceeded.Limit,
			RetryAfter: exceeded.RetryAfter,
			Limits:     results,
		}
	}

	return principal, outcomeOK, nil
}

// Get returns a key visible to owner
func (m *Manager) Get(ctx context.Context, owner *models.Owner, id uuid.UUID) (*models.APIKey, error) {
	return m.getOwned(ctx, owner, id)
}

// List pages through the owner's keys, newest first
func (m *Manager) List(ctx context.Context, owner *models.Owner, opts ListOptions) (*KeyPage, error) {
	return m.list(ctx, owner.ID, opts)
}

// ListAll pages through every owner's keys
func (m *Manager) ListAll(ctx context.Context, opts ListOptions) (*KeyPage, error) {
	return m.list(ctx, uuid.Nil, opts)
}

func (m *Manager) list(ctx context.Context, ownerID uuid.UUID, opts ListOptions) (*KeyPage, error) {
	page := max(opts.Page, 1)
	size := opts.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	keys, total, err := m.keys.List(ctx, storage.KeyFilter{
		OwnerID:         ownerID,
		IncludeInactive: opts.IncludeInactive,
		Limit:           size,
		Offset:          (page - 1) * size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return &KeyPage{Keys: keys, Total: total, Page: page, PageSize: size}, nil
}

// Update changes a key's descriptive and policy fields
func (m *Manager) Update(ctx context.Context, owner *models.Owner, id uuid.UUID, params UpdateKeyParams) (*models.APIKey, error) {
	key, err := m.getOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name, err := validateName(*params.Name)
		if err != nil {
			return nil, err
		}
		if name != key.Name {
			exists, err := m.keys.NameExists(ctx, key.OwnerID, name, key.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to check key name: %w", err)
			}
			if exists {
				return nil, ErrDuplicateName
			}
		}
		key.Name = name
	}
	if params.Description != nil {
		if err := validateDescription(params.Description); err != nil {
			return nil, err
		}
		key.Description = params.Description
	}
	if params.Scopes != nil {
		if len(params.Scopes) == 0 {
			return nil, &ValidationError{Field: "scopes", Message: "at least one scope is required"}
		}
		scopes, err := normalizeScopes(params.Scopes)
		if err != nil {
			return nil, err
		}
		key.Scopes = scopes
	}
	// Reactivation counts against the key owner's cap, not the caller's
	maxActive := 0
	if params.IsActive != nil {
		if *params.IsActive && !key.IsActive {
			keyOwner := owner
			if keyOwner.ID != key.OwnerID {
				if keyOwner, err = m.owners.GetByID(ctx, key.OwnerID); err != nil {
					return nil, fmt.Errorf("failed to load key owner: %w", err)
				}
			}
			maxActive = PolicyFor(keyOwner).MaxActiveKeys
		}
		key.IsActive = *params.IsActive
	}
	if key.RateLimitPerMinute, err = limitOrDefault("rate_limit_per_minute", params.RateLimitPerMinute, key.RateLimitPerMinute, maxPerMinute); err != nil {
		return nil, err
	}
	if key.RateLimitPerHour, err = limitOrDefault("rate_limit_per_hour", params.RateLimitPerHour, key.RateLimitPerHour, maxPerHour); err != nil {
		return nil, err
	}
	if key.RateLimitPerDay, err = limitOrDefault("rate_limit_per_day", params.RateLimitPerDay, key.RateLimitPerDay, maxPerDay); err != nil {
		return nil, err
	}
	if params.Metadata != nil {
		key.Metadata = params.Metadata
	}

	if err := m.keys.Update(ctx, key, maxActive); err != nil {
		switch {
		case errors.Is(err, storage.ErrActiveKeyLimit):
			return nil, &MaxKeysError{Max: maxActive}
		case errors.Is(err, storage.ErrDuplicateKeyName):
			return nil, ErrDuplicateName
		case errors.Is(err, storage.ErrAPIKeyNotFound):
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to update key: %w", err)
	}

	m.logger.Info("API key updated", "key_id", key.ID, "owner_id", key.OwnerID)
	return key, nil
}

// Rotate replaces the key's secret. The old secret stops working immediately.
func (m *Manager) Rotate(ctx context.Context, owner *models.Owner, id uuid.UUID) (string, *models.APIKey, error) {
	key, err := m.getOwned(ctx, owner, id)
	if err != nil {
		return "", nil, err
	}

	for attempt := 1; ; attempt++ {
		raw, err := GenerateKey()
		if err != nil {
			return "", nil, err
		}

		rotated, err := m.keys.Rotate(ctx, key.ID, HashKey(raw), DisplayPrefix(raw))
		switch {
		case err == nil:
			m.clearUsageMirror(ctx, key.ID)
			m.logger.Info("API key rotated", "key_id", key.ID, "prefix", rotated.KeyPrefix)
			return raw, rotated, nil
		case errors.Is(err, storage.ErrAPIKeyNotFound):
			return "", nil, ErrKeyNotFound
		case errors.Is(err, storage.ErrDuplicateKeyHash) && attempt < generateAttempts:
			continue
		default:
			return "", nil, fmt.Errorf("failed to rotate key: %w", err)
		}
	}
}

// Delete removes a key and its rate-limit and usage state
func (m *Manager) Delete(ctx context.Context, owner *models.Owner, id uuid.UUID) error {
	key, err := m.getOwned(ctx, owner, id)
	if err != nil {
		return err
	}

	if err := m.keys.Delete(ctx, key.ID); err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to delete key: %w", err)
	}

	if err := m.coordinator.Reset(ctx, key.ID.String(), keyWindows(key)); err != nil {
		m.logger.Warn("Failed to clear rate limit state", "key_id", key.ID, "error", err)
	}
	m.clearUsageMirror(ctx, key.ID)

	m.logger.Info("API key deleted", "key_id", key.ID, "owner_id", key.OwnerID)
	return nil
}

// ResetLimits clears a key's rate-limit windows, usage mirror and durable
// windowed counters
func (m *Manager) ResetLimits(ctx context.Context, id uuid.UUID) error {
	key, err := m.keys.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to load key: %w", err)
	}

	if err := m.coordinator.Reset(ctx, key.ID.String(), keyWindows(key)); err != nil {
		return fmt.Errorf("failed to reset rate limits: %w", err)
	}
	m.clearUsageMirror(ctx, key.ID)

	if err := m.keys.ResetUsage(ctx, key.ID); err != nil {
		return fmt.Errorf("failed to reset usage counters: %w", err)
	}

	m.logger.Info("API key limits reset", "key_id", key.ID)
	return nil
}

// RateLimitStatus reports the key's windows without consuming quota
func (m *Manager) RateLimitStatus(ctx context.Context, key *models.APIKey) []ratelimit.WindowResult {
	return m.coordinator.Status(ctx, key.ID.String(), keyWindows(key))
}

// RecordUsage counts one admitted request. The durable write happens first;
// the Redis mirror is best effort.
func (m *Manager) RecordUsage(ctx context.Context, ev models.UsageEvent) error {
	at := ev.Timestamp
	if at.IsZero() {
		at = m.now()
	}

	if _, err := m.keys.RecordUsage(ctx, ev.APIKeyID, at, ev.ClientIP, ev.UserAgent); err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to record usage: %w", err)
	}

	if m.redis == nil {
		return nil
	}

	keys := make([]string, len(mirrorWindows))
	ttls := make([]any, len(mirrorWindows))
	for i, w := range mirrorWindows {
		keys[i] = usageKey(ev.APIKeyID, w.name)
		ttls[i] = int(w.ttl.Seconds())
	}
	if err := incrementScript.Run(ctx, m.redis, keys, ttls...).Err(); err != nil {
		m.logger.Warn("Failed to update usage mirror", "key_id", ev.APIKeyID, "error", err)
	}
	return nil
}

// CurrentUsage reads the Redis mirror, falling back to the durable counters
// when the mirror is empty or unavailable
func (m *Manager) CurrentUsage(ctx context.Context, key *models.APIKey) Usage {
	usage := Usage{
		TotalRequests: key.TotalRequests,
		LastUsedAt:    key.LastUsedAt,
	}

	if m.redis != nil {
		keys := make([]string, len(mirrorWindows))
		for i, w := range mirrorWindows {
			keys[i] = usageKey(key.ID, w.name)
		}

		values, err := m.redis.MGet(ctx, keys...).Result()
		if err != nil {
			m.logger.Warn("Failed to read usage mirror", "key_id", key.ID, "error", err)
		} else if counts, ok := parseMirror(values); ok {
			usage.RequestsThisMinute = counts[0]
			usage.RequestsThisHour = counts[1]
			usage.RequestsToday = counts[2]
			usage.Source = "redis"
			return usage
		}
	}

	now := m.now().UTC()
	usage.RequestsThisMinute = currentBucket(key.RequestsThisMinute, key.LastUsedAt, now, time.Minute)
	usage.RequestsThisHour = currentBucket(key.RequestsThisHour, key.LastUsedAt, now, time.Hour)
	usage.RequestsToday = currentBucket(key.RequestsToday, key.LastUsedAt, now, 24*time.Hour)
	usage.Source = "database"
	return usage
}

func (m *Manager) getOwned(ctx context.Context, owner *models.Owner, id uuid.UUID) (*models.APIKey, error) {
	key, err := m.keys.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	if !owner.CanManage(key.OwnerID) {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

func (m *Manager) clearUsageMirror(ctx context.Context, id uuid.UUID) {
	if m.redis == nil {
		return
	}
	keys := make([]string, len(mirrorWindows))
	for i, w := range mirrorWindows {
		keys[i] = usageKey(id, w.name)
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		m.logger.Warn("Failed to clear usage mirror", "key_id", id, "error", err)
	}
}

func keyWindows(key *models.APIKey) []ratelimit.Window {
	return ratelimit.KeyWindows(key.RateLimitPerMinute, key.RateLimitPerHour, key.RateLimitPerDay)
}

func usageKey(id uuid.UUID, window string) string {
	return fmt.Sprintf("%s:%s:%s", UsageKeyPrefix, id, window)
}

// parseMirror converts MGET replies. It reports false when no counter exists.
func parseMirror(values []any) ([]int64, bool) {
	counts := make([]int64, len(values))
	found := false
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var n int64
		if _, err := fmt.Sscan(s, &n); err != nil {
			continue
		}
		counts[i] = n
		found = true
	}
	return counts, found
}

// currentBucket hides a durable counter whose bucket has already passed
func currentBucket(count int64, lastUsed *time.Time, now time.Time, bucket time.Duration) int64 {
	if lastUsed == nil || !lastUsed.UTC().Truncate(bucket).Equal(now.Truncate(bucket)) {
		return 0
	}
	return count
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Message: "is required"}
	}
	if len(name) > maxNameLength {
		return "", &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}
	return name, nil
}

func validateDescription(description *string) error {
	if description != nil && len(*description) > maxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
	}
	return nil
}

func limitOrDefault(field string, value *int, fallback, upper int) (int, error) {
	if value == nil {
		return fallback, nil
	}
	if *value < 1 || *value > upper {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("must be between 1 and %d", upper)}
	}
	return *value, nil
}
