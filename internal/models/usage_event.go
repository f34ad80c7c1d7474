package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageEvent is one admitted request, queued for asynchronous accounting.
type UsageEvent struct {
	APIKeyID  uuid.UUID `json:"api_key_id"`
	Timestamp time.Time `json:"timestamp"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Path      string    `json:"path,omitempty"`
}
