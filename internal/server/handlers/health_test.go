package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		db         Pinger
		name       string
		wantStatus string
		wantDB     string
		wantCode   int
	}{
		{
			name:       "no database",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "database ok",
			db:         pingFunc(func(context.Context) error { return nil }),
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantDB:     "ok",
		},
		{
			name:       "database down",
			db:         pingFunc(func(context.Context) error { return errors.New("database is closed") }),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantDB:     "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(setupTestLogger(), tt.db, func() int64 { return 42 }, BuildInfo{Version: "dev"})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			w := httptest.NewRecorder()

			handler.Health(w, req)

			resp := w.Result()
			defer func() {
				err := resp.Body.Close()
				assert.NoError(t, err)
			}()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var healthResp HealthResponse
			err := json.NewDecoder(resp.Body).Decode(&healthResp)
			assert.NoError(t, err)

			assert.Equal(t, tt.wantStatus, healthResp.Status)
			assert.Equal(t, tt.wantDB, healthResp.Database)
			assert.Equal(t, "dev", healthResp.Version)
			assert.Equal(t, int64(42), healthResp.Seq)
		})
	}
}
