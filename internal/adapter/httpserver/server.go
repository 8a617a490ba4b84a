// Package httpserver exposes the public content endpoint, the admin API, both
// display transports and the operational endpoints over echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/activate/internal/adapter/metrics"
	"github.com/pscheid92/activate/internal/app"
	"github.com/pscheid92/activate/internal/domain"
	"github.com/pscheid92/activate/internal/platform/config"
)

type appService interface {
	AssignMedia(ctx context.Context, channelID string, mediaID uuid.UUID) error
	ClearBinding(ctx context.Context, channelID string) error
	SetActive(ctx context.Context, channelID string, active bool) error
	DeleteChannel(ctx context.Context, channelID string) error
	Content(ctx context.Context, channelID string) domain.Payload
	ChannelStatus(ctx context.Context, channelID string) app.ChannelStatus
}

// Transports holds the display client endpoints. Nil entries are not routed.
type Transports struct {
	Centrifuge http.Handler
	Raw        echo.HandlerFunc
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	transports   Transports
	httpMetrics  *metrics.HTTPMetrics
	metrics      http.Handler
	healthChecks []HealthCheck

	clock     clockwork.Clock
	startTime time.Time
	started   atomic.Bool
}

// NewServer builds the server and registers every route. httpMetrics and
// metricsHandler may be nil.
func NewServer(cfg *config.Config, svc appService, transports Transports, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          svc,
		transports:   transports,
		httpMetrics:  httpMetrics,
		metrics:      metricsHandler,
		healthChecks: healthChecks,
		clock:        clockwork.NewRealClock(),
	}
	srv.startTime = srv.clock.Now()

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
