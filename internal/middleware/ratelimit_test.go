package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyguard/internal/auth"
	"keyguard/internal/models"
	"keyguard/internal/ratelimit"
	"keyguard/internal/storage"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestIPRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	coordinator := ratelimit.NewCoordinator(ratelimit.NewSlidingWindowLimiter(client, "ip_rate_limit"), "ip", nil)
	limiter := ratelimit.NewIPLimiter(coordinator, ratelimit.IPTiers{Anonymous: 2, Authenticated: 3, Premium: 5})
	sessions := auth.NewSessionManager(storage.NewMemoryOwnerStore(), []byte("ip-secret"), time.Hour)
	handler := IPRateLimit(limiter, sessions)(okHandler())

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, nil, "/").Code)
	}
	w := serve(handler, nil, "/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	t.Run("malformed credentials stay anonymous", func(t *testing.T) {
		for _, creds := range []map[string]string{
			{"X-API-Key": "garbage"},
			{"Authorization": "Bearer not-a-jwt"},
		} {
			assert.Equal(t, http.StatusTooManyRequests, serve(handler, creds, "/").Code, creds)
		}
		assert.False(t, mr.Exists("ip_rate_limit:minute:authenticated:203.0.113.10:60"))
	})

	t.Run("well-formed key uses authenticated tier", func(t *testing.T) {
		raw, err := auth.GenerateKey()
		require.NoError(t, err)
		creds := map[string]string{"X-API-Key": raw}
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, serve(handler, creds, "/").Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, serve(handler, creds, "/").Code)
	})

	t.Run("premium session uses premium tier", func(t *testing.T) {
		token, _, err := sessions.Issue(&models.Owner{ID: uuid.New(), SubscriptionTier: models.TierPremium})
		require.NoError(t, err)
		creds := map[string]string{"Authorization": "Bearer " + token}
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, serve(handler, creds, "/").Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, serve(handler, creds, "/").Code)
		assert.True(t, mr.Exists("ip_rate_limit:minute:premium:203.0.113.10:60"))
	})

	t.Run("other address is unaffected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLoginRateLimit(t *testing.T) {
	handler := LoginRateLimit(2)(okHandler())

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, nil, "/auth/login").Code)
	}
	w := serve(handler, nil, "/auth/login")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Too many login attempts")
}
