package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ReportsSubmitted.WithLabelValues("inserted").Inc()
	m.ReportsSubmitted.WithLabelValues("inserted").Inc()
	m.ReportsSubmitted.WithLabelValues("stale").Inc()

	body := scrape(t, m)
	assert.Contains(t, body, `soundlines_reports_submitted_total{outcome="inserted"} 2`)
	assert.Contains(t, body, `soundlines_reports_submitted_total{outcome="stale"} 1`)
}

func TestMetrics_ObserveHTTP(t *testing.T) {
	tests := []struct {
		name   string
		label  string
		status int
	}{
		{name: "ok", status: http.StatusOK, label: "2xx"},
		{name: "created", status: http.StatusCreated, label: "2xx"},
		{name: "redirect", status: http.StatusFound, label: "3xx"},
		{name: "bad request", status: http.StatusBadRequest, label: "4xx"},
		{name: "unavailable", status: http.StatusServiceUnavailable, label: "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.ObserveHTTP("/api/v1/world", tt.status, 10*time.Millisecond)
			body := scrape(t, m)
			assert.Contains(t, body, `soundlines_http_requests_total{route="/api/v1/world",status="`+tt.label+`"} 1`)
		})
	}
}

func TestMetrics_HandlerExposesGauges(t *testing.T) {
	m := New()
	m.Observe(Sources{
		IndexSize: func() int { return 7 },
		LogHead:   func() int64 { return 42 },
		LogFloor:  func() int64 { return 40 },
	})

	body := scrape(t, m)
	assert.Contains(t, body, "soundlines_index_reports 7")
	assert.Contains(t, body, "soundlines_log_head_seq 42")
	assert.Contains(t, body, "soundlines_log_floor_seq 40")
	assert.NotContains(t, body, "soundlines_log_records")
}
