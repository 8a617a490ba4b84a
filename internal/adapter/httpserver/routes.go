package httpserver

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const apiKeyHeader = "X-API-Key"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.allowedOrigins(),
		AllowMethods: []string{http.MethodGet, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, apiKeyHeader},
	}))

	s.registerHealthRoutes()
	s.registerContentRoutes()
	s.registerAdminRoutes()
	s.registerTransportRoutes()
}

func (s *Server) registerContentRoutes() {
	var recorder rateLimitRecorder
	if s.httpMetrics != nil {
		recorder = s.httpMetrics
	}
	limiter := newRateLimiter(s.config.PublicRateLimit, s.config.PublicRateBurst, recorder)
	s.echo.GET("/api/activators/content/:visualizerId", s.handleContent, limiter)
}

func (s *Server) registerAdminRoutes() {
	auth := s.adminAuthMiddleware()

	s.echo.PATCH("/api/activators/:visualizerId/assign-media", s.handleAssignMedia, auth)
	s.echo.PATCH("/api/activators/:visualizerId/active", s.handleSetActive, auth)
	s.echo.DELETE("/api/activators/:visualizerId", s.handleDeleteChannel, auth)
	s.echo.GET("/api/activators/:visualizerId/status", s.handleChannelStatus, auth)
}

const (
	centrifugeRoute = "/connection/websocket"
	rawSocketRoute  = "/ws/:visualizerId"
)

// TransportRoutes are the long-lived websocket routes. Request metrics skip them.
var TransportRoutes = []string{centrifugeRoute, rawSocketRoute}

func (s *Server) registerTransportRoutes() {
	if s.transports.Centrifuge != nil {
		s.echo.GET(centrifugeRoute, echo.WrapHandler(s.transports.Centrifuge))
	}
	if s.transports.Raw != nil {
		s.echo.GET(rawSocketRoute, s.transports.Raw)
	}
}

func (s *Server) adminAuthMiddleware() echo.MiddlewareFunc {
	expected := []byte(s.config.AdminAPIKey)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + apiKeyHeader,
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), expected) == 1, nil
		},
	})
}

func (s *Server) allowedOrigins() []string {
	if s.config.IsDevelopment() {
		return []string{"*"}
	}
	return append([]string{s.config.AppURL}, s.config.ExtraOrigins()...)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
