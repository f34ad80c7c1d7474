package storage

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrAPIKeyNotFound is returned when an API key is not found
	ErrAPIKeyNotFound = errors.New("API key not found")

	// ErrOwnerNotFound is returned when an owner account is not found
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrDuplicateKeyName is returned when an owner already has a key with the same name
	ErrDuplicateKeyName = errors.New("API key name already exists for owner")

	// ErrDuplicateKeyHash is returned when a generated secret collides with an existing one
	ErrDuplicateKeyHash = errors.New("API key hash already exists")

	// ErrDuplicateEmail is returned when an owner email is already registered
	ErrDuplicateEmail = errors.New("owner email already exists")

	// ErrActiveKeyLimit is returned when an insert or reactivation would exceed the owner's active key cap
	ErrActiveKeyLimit = errors.New("owner active API key limit reached")

	// ErrDuplicate is returned for other unique constraint violations
	ErrDuplicate = errors.New("duplicate record")
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

// mapConstraintError translates unique violations into sentinel errors
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}

	switch pqErr.Constraint {
	case "api_keys_owner_name_key":
		return ErrDuplicateKeyName
	case "api_keys_key_hash_key":
		return ErrDuplicateKeyHash
	case "owners_email_key":
		return ErrDuplicateEmail
	default:
		return ErrDuplicate
	}
}
