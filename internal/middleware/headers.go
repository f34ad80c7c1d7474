package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"keyguard/internal/ratelimit"
)

// SetRateLimitHeaders writes X-RateLimit-{Limit,Remaining,Reset}-{Window}
// for each window result. Reset is a Unix timestamp in seconds.
func SetRateLimitHeaders(w http.ResponseWriter, results []ratelimit.WindowResult) {
	h := w.Header()
	for _, r := range results {
		suffix := windowSuffix(r.Window.Name)
		if suffix == "" {
			continue
		}
		h.Set("X-RateLimit-Limit-"+suffix, strconv.Itoa(r.Window.Limit))
		h.Set("X-RateLimit-Remaining-"+suffix, strconv.Itoa(max(r.Remaining, 0)))
		if !r.ResetAt.IsZero() {
			h.Set("X-RateLimit-Reset-"+suffix, strconv.FormatInt(r.ResetAt.Unix(), 10))
		}
	}
}

func windowSuffix(name string) string {
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
