package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"keyguard/internal/models"
	"keyguard/internal/storage"
	"keyguard/internal/utils"
)

// SessionClaims is the decoded content of a session token
type SessionClaims struct {
	OwnerID   uuid.UUID
	Superuser bool
	Premium   bool
	ExpiresAt time.Time
}

// SessionManager signs in owners with email and password and issues HS256
// session tokens carrying the owner id
type SessionManager struct {
	owners OwnerStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger *utils.Logger
}

// NewSessionManager creates a session manager
func NewSessionManager(owners OwnerStore, secret []byte, ttl time.Duration) *SessionManager {
	return &SessionManager{
		owners: owners,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
		logger: utils.NewLogger("session"),
	}
}

// Login verifies credentials and returns a signed session token
func (s *SessionManager) Login(ctx context.Context, email, password string) (string, time.Time, *models.Owner, error) {
	owner, err := s.owners.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrOwnerNotFound) {
			return "", time.Time{}, nil, ErrInvalidPassword
		}
		return "", time.Time{}, nil, fmt.Errorf("failed to load owner: %w", err)
	}

	ok, err := VerifyPassword(password, owner.PasswordHash)
	if err != nil || !ok || !owner.IsActive {
		return "", time.Time{}, nil, ErrInvalidPassword
	}

	token, expiresAt, err := s.Issue(owner)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	if err := s.owners.UpdateLastLogin(ctx, owner.ID, s.now()); err != nil {
		s.logger.Warn("Failed to update last login", "owner_id", owner.ID, "error", err)
	}

	return token, expiresAt, owner, nil
}

// Issue signs a session token for the owner
func (s *SessionManager) Issue(owner *models.Owner) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub": owner.ID.String(),
		"su":  owner.IsSuperuser,
		"pt":  owner.IsPremium(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, time.Unix(expiresAt.Unix(), 0), nil
}

// Parse verifies the signature and expiry of a session token
func (s *SessionManager) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidSession
	}

	sub, _ := claims["sub"].(string)
	ownerID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidSession
	}

	superuser, _ := claims["su"].(bool)
	premium, _ := claims["pt"].(bool)
	var expiresAt time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(exp), 0)
	}

	return &SessionClaims{OwnerID: ownerID, Superuser: superuser, Premium: premium, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a session token to an active owner
func (s *SessionManager) Authenticate(ctx context.Context, tokenString string) (*models.Owner, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	owner, err := s.owners.GetByID(ctx, claims.OwnerID)
	if err != nil {
		if errors.Is(err, storage.ErrOwnerNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}
	if !owner.IsActive {
		return nil, ErrInvalidSession
	}
	return owner, nil
}
