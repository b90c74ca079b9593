package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/example/grocery-delivery/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Rate Limiter Tests
// ============================================

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "other clients keep their own bucket")

	fixed = fixed.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "bucket refills over time")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(5, 5)
	start := time.Now()
	rl.now = func() time.Time { return start }
	rl.Allow("10.0.0.1")

	rl.now = func() time.Time { return start.Add(time.Hour) }
	rl.Allow("10.0.0.2")
	rl.Sweep()

	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestClientIP_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", rl.clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.1", rl.clientIP(req))
}

func TestClientIP_TrustedProxy(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.NoError(t, rl.TrustProxies("10.0.0.0/8", "192.0.2.1"))

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct peer", "198.51.100.4:80", "203.0.113.9", "198.51.100.4"},
		{"single proxy", "192.0.2.1:80", "203.0.113.9", "203.0.113.9"},
		{"chain of proxies", "10.1.1.1:80", "203.0.113.9, 10.2.2.2", "203.0.113.9"},
		{"spoofed left hops ignored", "10.1.1.1:80", "1.1.1.1, 203.0.113.9", "203.0.113.9"},
		{"no header", "10.1.1.1:80", "", "10.1.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, rl.clientIP(req))
		})
	}
}

func TestTrustProxies_RejectsGarbage(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.Error(t, rl.TrustProxies("not-an-ip"))
	assert.Error(t, rl.TrustProxies("10.0.0.0/99"))
}

func TestRateLimiter_RotatingForwardedForDoesNotEvadeLimit(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for _, fwd := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		req.Header.Set("X-Forwarded-For", fwd)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

// ============================================
// Logging Tests
// ============================================

func TestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Service: "api", Level: "info", Output: &buf})

	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cart", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/cart", entry["path"])
	assert.EqualValues(t, http.StatusCreated, entry["status"])
}

// ============================================
// Idempotency Tests
// ============================================

type memoryKeys struct {
	mu       sync.Mutex
	keys     map[string]bool
	err      error
	released []string
}

func (m *memoryKeys) Claim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryKeys) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

func idempotentHandler(store IdempotencyStore, status int, calls *int) http.Handler {
	return Idempotency(store, "order", logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(status)
	}))
}

func postWithKey(h http.Handler, key string) int {
	req := httptest.NewRequest(http.MethodPost, "/order", nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestIdempotency_RejectsDuplicate(t *testing.T) {
	store := &memoryKeys{keys: map[string]bool{}}
	calls := 0
	h := idempotentHandler(store, http.StatusCreated, &calls)

	assert.Equal(t, http.StatusCreated, postWithKey(h, "abc"))
	assert.Equal(t, http.StatusConflict, postWithKey(h, "abc"))
	assert.Equal(t, http.StatusCreated, postWithKey(h, "def"))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	store := &memoryKeys{keys: map[string]bool{}}
	calls := 0
	h := idempotentHandler(store, http.StatusCreated, &calls)

	postWithKey(h, "")
	postWithKey(h, "")
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.keys)
}

func TestIdempotency_FailedRequestReleasesKey(t *testing.T) {
	store := &memoryKeys{keys: map[string]bool{}}
	calls := 0
	h := idempotentHandler(store, http.StatusBadRequest, &calls)

	assert.Equal(t, http.StatusBadRequest, postWithKey(h, "abc"))
	assert.Equal(t, http.StatusBadRequest, postWithKey(h, "abc"))
	assert.Equal(t, 2, calls)
	assert.Len(t, store.released, 2)
}

func TestIdempotency_StoreDownFailsOpen(t *testing.T) {
	store := &memoryKeys{keys: map[string]bool{}, err: errors.New("redis down")}
	calls := 0
	h := idempotentHandler(store, http.StatusCreated, &calls)

	assert.Equal(t, http.StatusCreated, postWithKey(h, "abc"))
	assert.Equal(t, 1, calls)
}
