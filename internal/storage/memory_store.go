package storage

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"keyguard/internal/models"
)

// MemoryAPIKeyStore is an in-memory API key store for standalone mode and tests.
// It enforces the same uniqueness rules as the Postgres schema.
type MemoryAPIKeyStore struct {
	mu     sync.RWMutex
	keys   map[uuid.UUID]*models.APIKey
	byHash map[string]uuid.UUID
	now    func() time.Time
}

// NewMemoryAPIKeyStore creates an empty store
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{
		keys:   make(map[uuid.UUID]*models.APIKey),
		byHash: make(map[string]uuid.UUID),
		now:    time.Now,
	}
}

func (s *MemoryAPIKeyStore) GetByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[keyHash]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}
	return cloneKey(s.keys[id]), nil
}

func (s *MemoryAPIKeyStore) GetByID(_ context.Context, id uuid.UUID) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}
	return cloneKey(key), nil
}

func (s *MemoryAPIKeyStore) List(_ context.Context, filter KeyFilter) ([]*models.APIKey, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		if filter.OwnerID != uuid.Nil && key.OwnerID != filter.OwnerID {
			continue
		}
		if !filter.IncludeInactive && !key.IsActive {
			continue
		}
		matched = append(matched, key)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}

	page := make([]*models.APIKey, 0, end-start)
	for _, key := range matched[start:end] {
		page = append(page, cloneKey(key))
	}
	return page, total, nil
}

func (s *MemoryAPIKeyStore) CountActiveByOwner(_ context.Context, ownerID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCount(ownerID, uuid.Nil), nil
}

func (s *MemoryAPIKeyStore) activeCount(ownerID, excludeID uuid.UUID) int {
	count := 0
	for _, key := range s.keys {
		if key.OwnerID == ownerID && key.IsActive && key.ID != excludeID {
			count++
		}
	}
	return count
}

func (s *MemoryAPIKeyStore) NameExists(_ context.Context, ownerID uuid.UUID, name string, excludeID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nameTaken(ownerID, name, excludeID), nil
}

func (s *MemoryAPIKeyStore) nameTaken(ownerID uuid.UUID, name string, excludeID uuid.UUID) bool {
	for _, key := range s.keys {
		if key.OwnerID == ownerID && key.Name == name && key.ID != excludeID {
			return true
		}
	}
	return false
}

// Create stores a new key. A positive maxActive caps the owner's active keys.
func (s *MemoryAPIKeyStore) Create(_ context.Context, key *models.APIKey, maxActive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.IsActive && maxActive > 0 && s.activeCount(key.OwnerID, key.ID) >= maxActive {
		return ErrActiveKeyLimit
	}
	if _, exists := s.byHash[key.KeyHash]; exists {
		return ErrDuplicateKeyHash
	}
	if s.nameTaken(key.OwnerID, key.Name, key.ID) {
		return ErrDuplicateKeyName
	}

	now := s.now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	s.keys[key.ID] = cloneKey(key)
	s.byHash[key.KeyHash] = key.ID
	return nil
}

// Update stores the mutable fields. Reactivation is capped like Create.
func (s *MemoryAPIKeyStore) Update(_ context.Context, key *models.APIKey, maxActive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.keys[key.ID]
	if !ok {
		return ErrAPIKeyNotFound
	}
	if key.IsActive && !stored.IsActive && maxActive > 0 && s.activeCount(stored.OwnerID, key.ID) >= maxActive {
		return ErrActiveKeyLimit
	}
	if s.nameTaken(stored.OwnerID, key.Name, key.ID) {
		return ErrDuplicateKeyName
	}

	stored.Name = key.Name
	stored.Description = cloneString(key.Description)
	stored.Scopes = slices.Clone(key.Scopes)
	stored.IsActive = key.IsActive
	stored.ExpiresAt = cloneTime(key.ExpiresAt)
	stored.RateLimitPerMinute = key.RateLimitPerMinute
	stored.RateLimitPerHour = key.RateLimitPerHour
	stored.RateLimitPerDay = key.RateLimitPerDay
	stored.Metadata = slices.Clone(key.Metadata)
	stored.UpdatedAt = s.now().UTC()

	key.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryAPIKeyStore) Rotate(_ context.Context, id uuid.UUID, keyHash, keyPrefix string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.keys[id]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}
	if other, exists := s.byHash[keyHash]; exists && other != id {
		return nil, ErrDuplicateKeyHash
	}

	delete(s.byHash, stored.KeyHash)
	stored.KeyHash = keyHash
	stored.KeyPrefix = keyPrefix
	stored.ResetWindowCounters()
	stored.ClearLastUsed()
	stored.UpdatedAt = s.now().UTC()
	s.byHash[keyHash] = id

	return cloneKey(stored), nil
}

func (s *MemoryAPIKeyStore) RecordUsage(_ context.Context, id uuid.UUID, at time.Time, ip, userAgent string) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.keys[id]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}
	stored.ApplyUsage(at, ip, userAgent)
	return cloneKey(stored), nil
}

func (s *MemoryAPIKeyStore) ResetUsage(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.keys[id]
	if !ok {
		return ErrAPIKeyNotFound
	}
	stored.ResetWindowCounters()
	stored.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryAPIKeyStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.keys[id]
	if !ok {
		return ErrAPIKeyNotFound
	}
	delete(s.byHash, stored.KeyHash)
	delete(s.keys, id)
	return nil
}

// MemoryOwnerStore is an in-memory owner store for standalone mode and tests
type MemoryOwnerStore struct {
	mu      sync.RWMutex
	owners  map[uuid.UUID]*models.Owner
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

// NewMemoryOwnerStore creates an empty store
func NewMemoryOwnerStore() *MemoryOwnerStore {
	return &MemoryOwnerStore{
		owners:  make(map[uuid.UUID]*models.Owner),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (s *MemoryOwnerStore) GetByID(_ context.Context, id uuid.UUID) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[id]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	clone := *owner
	return &clone, nil
}

func (s *MemoryOwnerStore) GetByEmail(_ context.Context, email string) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	clone := *s.owners[id]
	return &clone, nil
}

func (s *MemoryOwnerStore) Create(_ context.Context, owner *models.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner.ID == uuid.Nil {
		owner.ID = uuid.New()
	}
	owner.Email = strings.ToLower(owner.Email)
	if owner.SubscriptionTier == "" {
		owner.SubscriptionTier = models.TierFree
	}
	if _, exists := s.byEmail[owner.Email]; exists {
		return ErrDuplicateEmail
	}

	now := s.now().UTC()
	owner.CreatedAt = now
	owner.UpdatedAt = now

	clone := *owner
	s.owners[owner.ID] = &clone
	s.byEmail[owner.Email] = owner.ID
	return nil
}

func (s *MemoryOwnerStore) Update(_ context.Context, owner *models.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.owners[owner.ID]
	if !ok {
		return ErrOwnerNotFound
	}
	email := strings.ToLower(owner.Email)
	if other, exists := s.byEmail[email]; exists && other != owner.ID {
		return ErrDuplicateEmail
	}

	delete(s.byEmail, stored.Email)
	owner.Email = email
	owner.UpdatedAt = s.now().UTC()
	clone := *owner
	clone.CreatedAt = stored.CreatedAt
	s.owners[owner.ID] = &clone
	s.byEmail[email] = owner.ID
	return nil
}

func (s *MemoryOwnerStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.owners[id]
	if !ok {
		return ErrOwnerNotFound
	}
	at = at.UTC()
	stored.LastLoginAt = &at
	return nil
}

func cloneKey(k *models.APIKey) *models.APIKey {
	clone := *k
	clone.Scopes = slices.Clone(k.Scopes)
	clone.Metadata = slices.Clone(k.Metadata)
	clone.Description = cloneString(k.Description)
	clone.ExpiresAt = cloneTime(k.ExpiresAt)
	clone.LastUsedAt = cloneTime(k.LastUsedAt)
	clone.LastUsedIP = cloneString(k.LastUsedIP)
	clone.LastUserAgent = cloneString(k.LastUserAgent)
	return &clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
