package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/activate/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second
)

// HealthCheck is a named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latencyMs"`
	Error     string  `json:"error,omitempty"`
}

type healthReport struct {
	Status string                 `json:"status"`
	Failed []string               `json:"failed,omitempty"`
	Checks map[string]checkResult `json:"checks"`
}

type livenessReport struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Version       string  `json:"version"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// handleStartup checks dependencies until they pass once. After that the
// instance counts as started and the checks are no longer run.
func (s *Server) handleStartup(c echo.Context) error {
	if s.started.Load() {
		return writeJSON(c, http.StatusOK, healthReport{Status: "started"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), startupCheckTimeout)
	defer cancel()

	report := s.runChecks(ctx)
	if len(report.Failed) > 0 {
		return writeJSON(c, http.StatusServiceUnavailable, report)
	}
	s.started.Store(true)
	report.Status = "started"
	return writeJSON(c, http.StatusOK, report)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return writeJSON(c, http.StatusOK, livenessReport{
		Status:        "ok",
		UptimeSeconds: s.clock.Since(s.startTime).Seconds(),
		Version:       version.Get().Version,
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
	defer cancel()

	report := s.runChecks(ctx)
	if len(report.Failed) > 0 {
		return writeJSON(c, http.StatusServiceUnavailable, report)
	}
	return writeJSON(c, http.StatusOK, report)
}

// runChecks runs every check concurrently under ctx.
func (s *Server) runChecks(ctx context.Context) healthReport {
	report := healthReport{Status: "ready", Checks: make(map[string]checkResult, len(s.healthChecks))}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, hc := range s.healthChecks {
		g.Go(func() error {
			start := s.clock.Now()
			err := hc.Check(ctx)
			result := checkResult{OK: err == nil, LatencyMs: float64(s.clock.Since(start).Microseconds()) / 1000}
			if err != nil {
				result.Error = err.Error()
			}

			mu.Lock()
			report.Checks[hc.Name] = result
			if err != nil {
				report.Failed = append(report.Failed, hc.Name)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(report.Failed) > 0 {
		slices.Sort(report.Failed)
		report.Status = "unhealthy"
	}
	return report
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get())
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
