package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, maxSize int64, maxFiles int) (*AccessLogger, string) {
	dir := t.TempDir()
	template := filepath.Join(dir, "access-%s.jsonl")

	l, err := NewAccessLogger(AccessLogConfig{
		FileTemplate:  template,
		MaxSize:       maxSize,
		MaxFiles:      maxFiles,
		BufferSize:    100,
		FlushInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(l.Shutdown)
	return l, template
}

func readEntries(t *testing.T, template string) []AccessEntry {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(template), "access-*.jsonl"))
	require.NoError(t, err)

	var entries []AccessEntry
	for _, name := range matches {
		f, err := os.Open(name)
		require.NoError(t, err)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var e AccessEntry
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
			entries = append(entries, e)
		}
		f.Close()
	}
	return entries
}

func TestAccessLogger_WritesEntries(t *testing.T) {
	l, template := newTestLogger(t, 0, 5)

	l.Log(AccessEntry{Method: "GET", Path: "/health", Status: 200})
	l.Log(AccessEntry{Method: "POST", Path: "/api-keys", Status: 201, APIKeyID: "k-1"})
	l.Shutdown()

	entries := readEntries(t, template)
	require.Len(t, entries, 2)
	assert.Equal(t, "/health", entries[0].Path)
	assert.Equal(t, "k-1", entries[1].APIKeyID)

	// Safe to call twice
	l.Shutdown()
}

func TestAccessLogger_RotatesAndPrunes(t *testing.T) {
	l, template := newTestLogger(t, 200, 2)
	first := l.CurrentFile()

	for i := 0; i < 20; i++ {
		l.Log(AccessEntry{Method: "GET", Path: "/v1/whoami", Status: 200, ClientIP: "203.0.113.7"})
	}
	l.Shutdown()

	assert.NotEqual(t, first, l.CurrentFile())
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(template), "access-*.jsonl"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
	assert.NotContains(t, matches, first)
}

func TestAccessLogger_DropsWhenFull(t *testing.T) {
	l := &AccessLogger{entries: make(chan AccessEntry, 1)}

	l.Log(AccessEntry{})
	l.Log(AccessEntry{})

	assert.Equal(t, int64(1), l.Dropped())
}

func TestMiddleware(t *testing.T) {
	l, template := newTestLogger(t, 0, 5)

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Annotate(r.Context(), "api_key", "owner-1", "key-1")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/v1/whoami?api_key=llk_secret", nil)
	req.Header.Set("User-Agent", "sdk/1")
	req.RemoteAddr = "198.51.100.4:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// Untouched handlers log the implicit 200
	l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	l.Shutdown()

	entries := readEntries(t, template)
	require.Len(t, entries, 2)

	e := entries[0]
	assert.Equal(t, "/v1/whoami", e.Path)
	assert.Equal(t, http.StatusTeapot, e.Status)
	assert.Equal(t, "198.51.100.4", e.ClientIP)
	assert.Equal(t, "sdk/1", e.UserAgent)
	assert.Equal(t, "api_key", e.AuthMethod)
	assert.Equal(t, "owner-1", e.OwnerID)
	assert.Equal(t, "key-1", e.APIKeyID)

	assert.Equal(t, http.StatusOK, entries[1].Status)
	assert.Empty(t, entries[1].AuthMethod)
}

func TestAnnotate_WithoutLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Annotate(context.Background(), "session", "owner", "")
	})
}
