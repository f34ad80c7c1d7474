package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"keyguard/internal/models"
)

const ownerColumns = `id, email, password_hash, subscription_tier, is_active, is_superuser, last_login_at, created_at, updated_at`

// OwnerRepository handles owner account database operations
type OwnerRepository struct {
	db *DB
}

// NewOwnerRepository creates a new owner repository
func NewOwnerRepository(db *DB) *OwnerRepository {
	return &OwnerRepository{
		db: db,
	}
}

// GetByEmail retrieves an owner by email (case-insensitive)
func (r *OwnerRepository) GetByEmail(ctx context.Context, email string) (*models.Owner, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var owner models.Owner
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE email = $1`

	err := r.db.conn.GetContext(ctx, &owner, query, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	return &owner, nil
}

// GetByID retrieves an owner by ID
func (r *OwnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var owner models.Owner
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE id = $1`

	err := r.db.conn.GetContext(ctx, &owner, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	return &owner, nil
}

// Create creates a new owner
func (r *OwnerRepository) Create(ctx context.Context, owner *models.Owner) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO owners (id, email, password_hash, subscription_tier, is_active, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	if owner.ID == uuid.Nil {
		owner.ID = uuid.New()
	}
	owner.Email = strings.ToLower(owner.Email)
	if owner.SubscriptionTier == "" {
		owner.SubscriptionTier = models.TierFree
	}

	err := r.db.conn.QueryRowContext(
		ctx, query,
		owner.ID, owner.Email, owner.PasswordHash, owner.SubscriptionTier, owner.IsActive, owner.IsSuperuser,
	).Scan(&owner.CreatedAt, &owner.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create owner: %w", mapConstraintError(err))
	}

	return nil
}

// Update updates an existing owner
func (r *OwnerRepository) Update(ctx context.Context, owner *models.Owner) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE owners
		SET email = $2, password_hash = $3, subscription_tier = $4, is_active = $5, is_superuser = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowContext(
		ctx, query,
		owner.ID, strings.ToLower(owner.Email), owner.PasswordHash, owner.SubscriptionTier, owner.IsActive, owner.IsSuperuser,
	).Scan(&owner.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOwnerNotFound
		}
		return fmt.Errorf("failed to update owner: %w", mapConstraintError(err))
	}

	return nil
}

// UpdateLastLogin updates the last login timestamp for an owner
func (r *OwnerRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.conn.ExecContext(ctx, `UPDATE owners SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrOwnerNotFound
	}

	return nil
}
