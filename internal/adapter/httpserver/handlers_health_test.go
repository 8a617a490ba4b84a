package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) healthReport {
	t.Helper()
	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func TestHandleStartup_ChecksUntilFirstSuccess(t *testing.T) {
	var calls atomic.Int32
	var healthy atomic.Bool
	check := func(context.Context) error {
		calls.Add(1)
		if !healthy.Load() {
			return errors.New("migrations pending")
		}
		return nil
	}
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(HealthCheck{Name: "postgres", Check: check}))

	c, rec := newTestContext(srv, http.MethodGet, "/health/startup", "")
	require.NoError(t, srv.handleStartup(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []string{"postgres"}, decodeReport(t, rec).Failed)

	healthy.Store(true)
	c, rec = newTestContext(srv, http.MethodGet, "/health/startup", "")
	require.NoError(t, srv.handleStartup(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "started", decodeReport(t, rec).Status)

	healthy.Store(false)
	c, rec = newTestContext(srv, http.MethodGet, "/health/startup", "")
	require.NoError(t, srv.handleStartup(c))
	assert.Equal(t, http.StatusOK, rec.Code, "startup stays passed once it succeeded")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})
	srv.clock.(*clockwork.FakeClock).Advance(90 * time.Second)
	c, rec := newTestContext(srv, http.MethodGet, "/health/live", "")

	require.NoError(t, srv.handleLiveness(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body livenessReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.InDelta(t, 90, body.UptimeSeconds, 0)
	assert.NotEmpty(t, body.Version)
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantFailed []string
		wantErrors map[string]string
	}{
		{
			name:       "all healthy",
			checks:     []HealthCheck{{Name: "redis", Check: healthOK}, {Name: "postgres", Check: healthOK}},
			wantStatus: http.StatusOK,
			wantErrors: map[string]string{"redis": "", "postgres": ""},
		},
		{
			name:       "redis down",
			checks:     []HealthCheck{{Name: "redis", Check: healthErr("connection refused")}, {Name: "postgres", Check: healthOK}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: []string{"redis"},
			wantErrors: map[string]string{"redis": "connection refused", "postgres": ""},
		},
		{
			name:       "both down",
			checks:     []HealthCheck{{Name: "redis", Check: healthErr("connection refused")}, {Name: "postgres", Check: healthErr("database unreachable")}},
			wantStatus: http.StatusServiceUnavailable,
			wantFailed: []string{"postgres", "redis"},
			wantErrors: map[string]string{"redis": "connection refused", "postgres": "database unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAppService{}, withHealthChecks(tt.checks...))
			c, rec := newTestContext(srv, http.MethodGet, "/health/ready", "")

			require.NoError(t, srv.handleReadiness(c))
			assert.Equal(t, tt.wantStatus, rec.Code)

			report := decodeReport(t, rec)
			assert.Equal(t, tt.wantFailed, report.Failed)
			require.Len(t, report.Checks, len(tt.wantErrors))
			for name, wantErr := range tt.wantErrors {
				assert.Equal(t, wantErr, report.Checks[name].Error, name)
				assert.Equal(t, wantErr == "", report.Checks[name].OK, name)
			}
			if tt.wantFailed != nil {
				assert.Equal(t, "unhealthy", report.Status)
			} else {
				assert.Equal(t, "ready", report.Status)
			}
		})
	}
}

func TestHandleReadiness_ChecksShareDeadline(t *testing.T) {
	var deadline time.Time
	check := func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(HealthCheck{Name: "postgres", Check: check}))
	c, _ := newTestContext(srv, http.MethodGet, "/health/ready", "")

	require.NoError(t, srv.handleReadiness(c))
	assert.WithinDuration(t, time.Now().Add(readinessCheckTimeout), deadline, time.Second)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})
	c, rec := newTestContext(srv, http.MethodGet, "/version", "")

	require.NoError(t, srv.handleVersion(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"service":"activate"`)
	assert.Contains(t, body, `"buildTime"`)
	assert.Contains(t, body, `"goVersion"`)
}

func TestMetricsRoute(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("activate_broadcast_clients 0\n"))
	})
	srv := newTestServer(t, &mockAppService{}, withMetricsHandler(metricsHandler))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "activate_broadcast_clients")
}
