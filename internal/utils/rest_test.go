package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{
			name:    "bad request",
			code:    http.StatusBadRequest,
			message: "Invalid input",
		},
		{
			name:    "unauthorized",
			code:    http.StatusUnauthorized,
			message: "Authentication required",
		},
		{
			name:    "too many requests",
			code:    http.StatusTooManyRequests,
			message: "Rate limit exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			RespondWithError(w, tt.code, tt.message)

			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}

			contentType := w.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", contentType)
			}

			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if response.Error != tt.message {
				t.Errorf("RespondWithError() message = %s, want %s", response.Error, tt.message)
			}
			if response.Code != "" {
				t.Errorf("RespondWithError() code = %s, want empty", response.Code)
			}
		})
	}
}

func TestRespondWithErrorCode(t *testing.T) {
	w := httptest.NewRecorder()

	RespondWithErrorCode(w, http.StatusForbidden, "insufficient_scope", "Missing scope")

	if w.Code != http.StatusForbidden {
		t.Errorf("RespondWithErrorCode() status = %d, want %d", w.Code, http.StatusForbidden)
	}

	var response ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Code != "insufficient_scope" {
		t.Errorf("RespondWithErrorCode() code = %s, want insufficient_scope", response.Code)
	}
	if response.Error != "Missing scope" {
		t.Errorf("RespondWithErrorCode() message = %s, want Missing scope", response.Error)
	}
}

func TestRespondWithJSON(t *testing.T) {
	w := httptest.NewRecorder()

	payload := map[string]any{
		"success": true,
		"count":   42,
	}

	if err := RespondWithJSON(w, http.StatusCreated, payload); err != nil {
		t.Errorf("RespondWithJSON() error = %v, want nil", err)
	}

	if w.Code != http.StatusCreated {
		t.Errorf("RespondWithJSON() status = %d, want %d", w.Code, http.StatusCreated)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["success"] != true {
		t.Errorf("RespondWithJSON() success = %v, want true", response["success"])
	}
	if int(response["count"].(float64)) != 42 {
		t.Errorf("RespondWithJSON() count = %v, want 42", response["count"])
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "remote address",
			remoteAddr: "192.0.2.10:51234",
			expected:   "192.0.2.10",
		},
		{
			name:       "first forwarded hop wins",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"},
			expected:   "203.0.113.5",
		},
		{
			name:       "real ip header",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			expected:   "198.51.100.7",
		},
		{
			name:       "remote address without port",
			remoteAddr: "192.0.2.44",
			expected:   "192.0.2.44",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			if got := ClientIP(r); got != tt.expected {
				t.Errorf("ClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}
