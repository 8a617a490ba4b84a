package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/activate/internal/app"
	"github.com/pscheid92/activate/internal/broadcast"
	"github.com/pscheid92/activate/internal/domain"
	"github.com/pscheid92/activate/internal/platform/config"
)

const testAPIKey = "test-admin-key-0123456789"

// --- Mock implementations ---

type mockAppService struct {
	assignMediaFn   func(ctx context.Context, channelID string, mediaID uuid.UUID) error
	clearBindingFn  func(ctx context.Context, channelID string) error
	setActiveFn     func(ctx context.Context, channelID string, active bool) error
	deleteChannelFn func(ctx context.Context, channelID string) error
	contentFn       func(ctx context.Context, channelID string) domain.Payload
	channelStatusFn func(ctx context.Context, channelID string) app.ChannelStatus
}

func (m *mockAppService) AssignMedia(ctx context.Context, channelID string, mediaID uuid.UUID) error {
	if m.assignMediaFn != nil {
		return m.assignMediaFn(ctx, channelID, mediaID)
	}
	return nil
}

func (m *mockAppService) ClearBinding(ctx context.Context, channelID string) error {
	if m.clearBindingFn != nil {
		return m.clearBindingFn(ctx, channelID)
	}
	return nil
}

func (m *mockAppService) SetActive(ctx context.Context, channelID string, active bool) error {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, channelID, active)
	}
	return nil
}

func (m *mockAppService) DeleteChannel(ctx context.Context, channelID string) error {
	if m.deleteChannelFn != nil {
		return m.deleteChannelFn(ctx, channelID)
	}
	return nil
}

func (m *mockAppService) Content(ctx context.Context, channelID string) domain.Payload {
	if m.contentFn != nil {
		return m.contentFn(ctx, channelID)
	}
	return domain.NoContent()
}

func (m *mockAppService) ChannelStatus(ctx context.Context, channelID string) app.ChannelStatus {
	if m.channelStatusFn != nil {
		return m.channelStatusFn(ctx, channelID)
	}
	return app.ChannelStatus{ChannelStatus: broadcast.ChannelStatus{ChannelID: channelID, Content: domain.ContentNone.String()}}
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "development",
		Port:            "8080",
		AppURL:          "http://localhost:8080",
		AdminAPIKey:     testAPIKey,
		PublicRateLimit: 100,
		PublicRateBurst: 100,
	}
}

func newTestServer(t *testing.T, svc appService, opts ...func(*Server)) *Server {
	t.Helper()

	clock := clockwork.NewFakeClock()
	srv := &Server{
		echo:      echo.New(),
		config:    testConfig(),
		app:       svc,
		clock:     clock,
		startTime: clock.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withMetricsHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.metrics = h
	}
}

func withConfig(mutate func(*config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

func withTransports(tr Transports) func(*Server) {
	return func(s *Server) {
		s.transports = tr
	}
}

func newTestContext(srv *Server, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return srv.echo.NewContext(req, rec), rec
}

// serve sends a request through the full router, middleware included.
func serve(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{apiKeyHeader: testAPIKey}
}
