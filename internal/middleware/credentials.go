package middleware

import (
	"net/http"
	"strings"

	"keyguard/internal/auth"
	"keyguard/internal/utils"
)

// Where a credential was found
const (
	SourceBearer = "bearer"
	SourceHeader = "header"
	SourceQuery  = "query"
)

var credentialLogger = utils.NewLogger("http")

// ExtractAPIKey finds an API key on the request. The first match wins:
// a Bearer token carrying the key prefix, the X-API-Key header, then the
// api_key query parameter. Bearer tokens without the prefix are left for
// session authentication.
func ExtractAPIKey(r *http.Request) (key, source string) {
	if token, ok := bearerToken(r); ok && strings.HasPrefix(token, auth.KeyPrefix) {
		return token, SourceBearer
	}

	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, SourceHeader
	}

	if key := r.URL.Query().Get("api_key"); key != "" {
		credentialLogger.Debug("API key supplied in query string", "path", r.URL.Path)
		return key, SourceQuery
	}

	return "", ""
}

// SessionToken returns a Bearer token that is not an API key
func SessionToken(r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok || strings.HasPrefix(token, auth.KeyPrefix) {
		return "", false
	}
	return token, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
