package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyguard/internal/models"
	"keyguard/internal/storage"
)

func setupSessions(t *testing.T) (*SessionManager, *storage.MemoryOwnerStore, *models.Owner) {
	owners := storage.NewMemoryOwnerStore()

	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)

	owner := &models.Owner{
		Email:            "Ops@Example.com",
		PasswordHash:     hash,
		SubscriptionTier: models.TierBasic,
		IsActive:         true,
	}
	require.NoError(t, owners.Create(context.Background(), owner))

	return NewSessionManager(owners, []byte("test-secret"), time.Hour), owners, owner
}

func TestSessionManager_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		sessions, owners, owner := setupSessions(t)
		before := time.Now()

		token, expiresAt, got, err := sessions.Login(ctx, " ops@example.com ", "correct horse battery")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, owner.ID, got.ID)
		assert.WithinDuration(t, before.Add(time.Hour), expiresAt, 2*time.Second)

		stored, err := owners.GetByID(ctx, owner.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastLoginAt)

		claims, err := sessions.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, claims.OwnerID)
		assert.False(t, claims.Superuser)
		assert.False(t, claims.Premium)
		assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
	})

	t.Run("premium tier is carried in the token", func(t *testing.T) {
		sessions, _, _ := setupSessions(t)
		for tier, want := range map[string]bool{
			models.TierPremium:    true,
			models.TierEnterprise: true,
			models.TierFree:       false,
		} {
			token, _, err := sessions.Issue(&models.Owner{ID: uuid.New(), SubscriptionTier: tier})
			require.NoError(t, err)
			claims, err := sessions.Parse(token)
			require.NoError(t, err)
			assert.Equal(t, want, claims.Premium, tier)
		}
	})

	t.Run("rejects bad credentials alike", func(t *testing.T) {
		sessions, owners, owner := setupSessions(t)

		_, _, _, err := sessions.Login(ctx, "ops@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidPassword)

		_, _, _, err = sessions.Login(ctx, "nobody@example.com", "correct horse battery")
		assert.ErrorIs(t, err, ErrInvalidPassword)

		owner.IsActive = false
		require.NoError(t, owners.Update(ctx, owner))
		_, _, _, err = sessions.Login(ctx, "ops@example.com", "correct horse battery")
		assert.ErrorIs(t, err, ErrInvalidPassword)
	})
}

func TestSessionManager_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		sessions, _, owner := setupSessions(t)
		token, _, err := sessions.Issue(owner)
		require.NoError(t, err)

		got, err := sessions.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, owner.Email, got.Email)
	})

	t.Run("superuser claim", func(t *testing.T) {
		sessions, _, owner := setupSessions(t)
		owner.IsSuperuser = true
		token, _, err := sessions.Issue(owner)
		require.NoError(t, err)

		claims, err := sessions.Parse(token)
		require.NoError(t, err)
		assert.True(t, claims.Superuser)
	})

	t.Run("rejects foreign signature", func(t *testing.T) {
		sessions, owners, owner := setupSessions(t)
		other := NewSessionManager(owners, []byte("other-secret"), time.Hour)
		token, _, err := other.Issue(owner)
		require.NoError(t, err)

		_, err = sessions.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		sessions, _, owner := setupSessions(t)
		sessions.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := sessions.Issue(owner)
		require.NoError(t, err)

		_, err = sessions.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		sessions, _, _ := setupSessions(t)
		_, err := sessions.Authenticate(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("rejects deactivated owner", func(t *testing.T) {
		sessions, owners, owner := setupSessions(t)
		token, _, err := sessions.Issue(owner)
		require.NoError(t, err)

		owner.IsActive = false
		require.NoError(t, owners.Update(ctx, owner))

		_, err = sessions.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}
