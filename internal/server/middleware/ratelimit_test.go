package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/soundlines/internal/server/handlers"
)

func TestRateLimiter_Allow(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("Burst within limit is allowed", func(t *testing.T) {
		limiter := NewRateLimiter(1, 5, time.Minute, logger)
		defer limiter.Stop()

		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Allow("phone"), fmt.Sprintf("request %d should be allowed", i+1))
		}
		assert.False(t, limiter.Allow("phone"), "request over burst should be denied")
	})

	t.Run("Different keys are tracked separately", func(t *testing.T) {
		limiter := NewRateLimiter(1, 2, time.Minute, logger)
		defer limiter.Stop()

		assert.True(t, limiter.Allow("a"))
		assert.True(t, limiter.Allow("a"))
		assert.False(t, limiter.Allow("a"))

		assert.True(t, limiter.Allow("b"))
		assert.True(t, limiter.Allow("b"))
		assert.False(t, limiter.Allow("b"))
	})

	t.Run("Tokens refill over time", func(t *testing.T) {
		limiter := NewRateLimiter(2, 1, time.Minute, logger)
		defer limiter.Stop()

		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		clock := base
		limiter.now = func() time.Time { return clock }

		assert.True(t, limiter.Allow("phone"))
		assert.False(t, limiter.Allow("phone"))

		clock = base.Add(600 * time.Millisecond)
		assert.True(t, limiter.Allow("phone"))
	})
}

func TestRateLimiter_CleanupIdle(t *testing.T) {
	limiter := NewRateLimiter(1, 1, time.Minute, slog.New(slog.DiscardHandler))
	defer limiter.Stop()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	limiter.now = func() time.Time { return clock }

	limiter.Allow("old")
	clock = base.Add(50 * time.Second)
	limiter.Allow("fresh")
	assert.Equal(t, 2, limiter.Len())

	clock = base.Add(90 * time.Second)
	limiter.cleanupIdle()
	assert.Equal(t, 1, limiter.Len())

	// Повторный Stop не паникует
	limiter.Stop()
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2, time.Minute, slog.New(slog.DiscardHandler))
	defer limiter.Stop()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := limiter.Middleware(ok)

	send := func(remote, device string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", nil)
		req.RemoteAddr = remote
		if device != "" {
			req = req.WithContext(handlers.WithDevice(req.Context(), device, device))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
			assert.True(t, strings.Contains(w.Body.String(), "rate limit exceeded"))
		}
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5001", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5002", ""))

	// Аутентифицированный телефон имеет собственный бакет
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5003", "phone-1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5004", "phone-1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5005", "phone-1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5006", "phone-2"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		headers    map[string]string
		name       string
		remoteAddr string
		expected   string
	}{
		{
			name:       "RemoteAddr with port",
			remoteAddr: "192.168.1.1:12345",
			expected:   "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For list",
			remoteAddr: "10.0.0.1:1",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 70.41.3.18"},
			expected:   "203.0.113.7",
		},
		{
			name:       "X-Real-IP",
			remoteAddr: "10.0.0.1:1",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			expected:   "198.51.100.2",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "unix-socket",
			expected:   "unix-socket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}
