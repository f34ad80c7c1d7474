package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"keyguard/internal/models"
)

const apiKeyColumns = `id, owner_id, name, description, key_hash, key_prefix, scopes, is_active, expires_at,
	rate_limit_per_minute, rate_limit_per_hour, rate_limit_per_day,
	total_requests, requests_today, requests_this_hour, requests_this_minute,
	last_used_at, last_used_ip, last_user_agent, metadata, created_at, updated_at`

// KeyFilter narrows key listings. A zero OwnerID lists every owner's keys.
type KeyFilter struct {
	OwnerID         uuid.UUID
	IncludeInactive bool
	Limit           int
	Offset          int
}

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// GetByHash retrieves an API key by its hash
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	return r.getOne(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash)
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	return r.getOne(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
}

func (r *APIKeyRepository) getOne(ctx context.Context, query string, arg any) (*models.APIKey, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var key models.APIKey
	if err := r.db.conn.GetContext(ctx, &key, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	return &key, nil
}

// List returns one page of keys matching the filter plus the total match count
func (r *APIKeyRepository) List(ctx context.Context, filter KeyFilter) ([]*models.APIKey, int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	owner := uuid.NullUUID{UUID: filter.OwnerID, Valid: filter.OwnerID != uuid.Nil}
	where := ` WHERE ($1::uuid IS NULL OR owner_id = $1) AND ($2 OR is_active)`

	var total int
	if err := r.db.conn.GetContext(ctx, &total, `SELECT COUNT(*) FROM api_keys`+where, owner, filter.IncludeInactive); err != nil {
		return nil, 0, fmt.Errorf("failed to count API keys: %w", err)
	}

	query := `SELECT ` + apiKeyColumns + ` FROM api_keys` + where + ` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`

	keys := []*models.APIKey{}
	if err := r.db.conn.SelectContext(ctx, &keys, query, owner, filter.IncludeInactive, filter.Limit, filter.Offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list API keys: %w", err)
	}

	return keys, total, nil
}

// CountActiveByOwner counts the owner's active keys
func (r *APIKeyRepository) CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var count int
	err := r.db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys WHERE owner_id = $1 AND is_active`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to count API keys: %w", err)
	}
	return count, nil
}

// NameExists reports whether the owner already has a key called name, ignoring excludeID
func (r *APIKeyRepository) NameExists(ctx context.Context, ownerID uuid.UUID, name string, excludeID uuid.UUID) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.conn.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM api_keys WHERE owner_id = $1 AND name = $2 AND id <> $3)`,
		ownerID, name, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check API key name: %w", err)
	}
	return exists, nil
}

// Create creates a new API key. A positive maxActive caps the owner's active
// keys; the owner row stays locked from the count to the insert.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey, maxActive int) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO api_keys (
			id, owner_id, name, description, key_hash, key_prefix, scopes, is_active, expires_at,
			rate_limit_per_minute, rate_limit_per_hour, rate_limit_per_day, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	return r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if key.IsActive {
			if err := checkActiveLimit(ctx, tx, key.OwnerID, key.ID, maxActive); err != nil {
				return err
			}
		}

		err := tx.QueryRowxContext(ctx, query,
			key.ID, key.OwnerID, key.Name, key.Description, key.KeyHash, key.KeyPrefix, key.Scopes,
			key.IsActive, key.ExpiresAt, key.RateLimitPerMinute, key.RateLimitPerHour, key.RateLimitPerDay,
			key.Metadata,
		).Scan(&key.CreatedAt, &key.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create API key: %w", mapConstraintError(err))
		}
		return nil
	})
}

// Update persists the mutable descriptive and policy fields of a key.
// Reactivating an inactive key is subject to maxActive like Create.
func (r *APIKeyRepository) Update(ctx context.Context, key *models.APIKey, maxActive int) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE api_keys
		SET name = $2, description = $3, scopes = $4, is_active = $5, expires_at = $6,
			rate_limit_per_minute = $7, rate_limit_per_hour = $8, rate_limit_per_day = $9,
			metadata = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	return r.db.inTx(ctx, func(tx *sqlx.Tx) error {
		if key.IsActive && maxActive > 0 {
			if err := lockOwner(ctx, tx, key.OwnerID); err != nil {
				return err
			}

			var wasActive bool
			err := tx.GetContext(ctx, &wasActive, `SELECT is_active FROM api_keys WHERE id = $1`, key.ID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrAPIKeyNotFound
				}
				return fmt.Errorf("failed to get API key: %w", err)
			}
			if !wasActive {
				if err := countActive(ctx, tx, key.OwnerID, key.ID, maxActive); err != nil {
					return err
				}
			}
		}

		err := tx.QueryRowxContext(ctx, query,
			key.ID, key.Name, key.Description, key.Scopes, key.IsActive, key.ExpiresAt,
			key.RateLimitPerMinute, key.RateLimitPerHour, key.RateLimitPerDay, key.Metadata,
		).Scan(&key.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAPIKeyNotFound
			}
			return fmt.Errorf("failed to update API key: %w", mapConstraintError(err))
		}
		return nil
	})
}

// checkActiveLimit locks the owner row and fails once the owner holds
// maxActive active keys other than excludeID
func checkActiveLimit(ctx context.Context, tx *sqlx.Tx, ownerID, excludeID uuid.UUID, maxActive int) error {
	if maxActive <= 0 {
		return nil
	}
	if err := lockOwner(ctx, tx, ownerID); err != nil {
		return err
	}
	return countActive(ctx, tx, ownerID, excludeID, maxActive)
}

func lockOwner(ctx context.Context, tx *sqlx.Tx, ownerID uuid.UUID) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `SELECT id FROM owners WHERE id = $1 FOR UPDATE`, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOwnerNotFound
		}
		return fmt.Errorf("failed to lock owner: %w", err)
	}
	return nil
}

func countActive(ctx context.Context, tx *sqlx.Tx, ownerID, excludeID uuid.UUID, maxActive int) error {
	var count int
	err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM api_keys WHERE owner_id = $1 AND is_active AND id <> $2`, ownerID, excludeID)
	if err != nil {
		return fmt.Errorf("failed to count API keys: %w", err)
	}
	if count >= maxActive {
		return ErrActiveKeyLimit
	}
	return nil
}

// Rotate swaps in a new secret and restarts the windowed counters
func (r *APIKeyRepository) Rotate(ctx context.Context, id uuid.UUID, keyHash, keyPrefix string) (*models.APIKey, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE api_keys
		SET key_hash = $2, key_prefix = $3,
			requests_today = 0, requests_this_hour = 0, requests_this_minute = 0,
			last_used_at = NULL, last_used_ip = NULL, last_user_agent = NULL,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + apiKeyColumns

	var key models.APIKey
	if err := r.db.conn.QueryRowxContext(ctx, query, id, keyHash, keyPrefix).StructScan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to rotate API key: %w", mapConstraintError(err))
	}

	return &key, nil
}

// RecordUsage counts one request in a single statement. Windowed counters
// restart at 1 when the request lands in a later UTC bucket than the last one.
func (r *APIKeyRepository) RecordUsage(ctx context.Context, id uuid.UUID, at time.Time, ip, userAgent string) (*models.APIKey, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE api_keys
		SET total_requests = total_requests + 1,
			requests_this_minute = CASE
				WHEN date_trunc('minute', last_used_at AT TIME ZONE 'UTC') = date_trunc('minute', $2::timestamptz AT TIME ZONE 'UTC')
				THEN requests_this_minute + 1 ELSE 1 END,
			requests_this_hour = CASE
				WHEN date_trunc('hour', last_used_at AT TIME ZONE 'UTC') = date_trunc('hour', $2::timestamptz AT TIME ZONE 'UTC')
				THEN requests_this_hour + 1 ELSE 1 END,
			requests_today = CASE
				WHEN date_trunc('day', last_used_at AT TIME ZONE 'UTC') = date_trunc('day', $2::timestamptz AT TIME ZONE 'UTC')
				THEN requests_today + 1 ELSE 1 END,
			last_used_at = $2,
			last_used_ip = COALESCE(NULLIF($3, ''), last_used_ip),
			last_user_agent = COALESCE(NULLIF($4, ''), last_user_agent)
		WHERE id = $1
		RETURNING ` + apiKeyColumns

	var key models.APIKey
	if err := r.db.conn.QueryRowxContext(ctx, query, id, at.UTC(), ip, userAgent).StructScan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to record API key usage: %w", err)
	}

	return &key, nil
}

// ResetUsage zeroes the windowed counters, keeping the lifetime total
func (r *APIKeyRepository) ResetUsage(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx, `
		UPDATE api_keys
		SET requests_today = 0, requests_this_hour = 0, requests_this_minute = 0, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to reset API key usage: %w", err)
	}
	return checkAffected(result, ErrAPIKeyNotFound)
}

// Delete deletes an API key by ID
func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return checkAffected(result, ErrAPIKeyNotFound)
}

func checkAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
