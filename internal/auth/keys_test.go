package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		raw, err := GenerateKey()
		require.NoError(t, err)
		assert.Len(t, raw, 36)
		assert.True(t, strings.HasPrefix(raw, KeyPrefix))
		assert.True(t, ValidateFormat(raw), raw)
		assert.False(t, seen[raw], "duplicate key generated")
		seen[raw] = true
	}
}

func TestHashKey(t *testing.T) {
	raw := "llk_abcdefghijklmnopqrstuvwxyz012345"
	assert.Equal(t, HashKey(raw), HashKey(raw))
	assert.Len(t, HashKey(raw), 64)
	assert.NotEqual(t, HashKey(raw), HashKey(raw+"x"))
}

func TestDisplayPrefix(t *testing.T) {
	assert.Equal(t, "llk_abcd", DisplayPrefix("llk_abcdefghijkl"))
	assert.Equal(t, "llk", DisplayPrefix("llk"))
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"generated shape", "llk_" + strings.Repeat("A", 32), true},
		{"url-safe characters", "llk_abc-DEF_123-xyz_7890", true},
		{"minimum length", "llk_" + strings.Repeat("a", 16), true},
		{"maximum length", "llk_" + strings.Repeat("a", 46), true},
		{"too short", "llk_" + strings.Repeat("a", 15), false},
		{"too long", "llk_" + strings.Repeat("a", 47), false},
		{"wrong prefix", "sk_" + strings.Repeat("a", 30), false},
		{"padding not allowed", "llk_" + strings.Repeat("a", 30) + "=", false},
		{"plus not allowed", "llk_" + strings.Repeat("a", 30) + "+", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateFormat(tt.input))
		})
	}
}

func TestNormalizeScopes(t *testing.T) {
	scopes, err := normalizeScopes(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ScopeRead}, scopes)

	scopes, err = normalizeScopes([]string{"write", "read", "write", "content:read"})
	require.NoError(t, err)
	assert.Equal(t, []string{"write", "read", "content:read"}, scopes)

	_, err = normalizeScopes([]string{"read", "root"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "scopes", verr.Field)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Contains(t, KnownScopes(), "*")
	assert.Len(t, KnownScopes(), 10)
}
