package httpserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/activate/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// rateLimitRecorder is notified of every rejected request.
type rateLimitRecorder interface {
	RecordRateLimited(route string)
}

// newRateLimiter limits requests per client IP with a token bucket that
// refills at ratePerSecond and holds up to burst tokens. recorder may be nil.
func newRateLimiter(ratePerSecond float64, burst int, recorder rateLimitRecorder) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(ratePerSecond),
		Burst:     burst,
		ExpiresIn: rateLimiterExpiry,
	})

	deny := func(c echo.Context, clientIP string, _ error) error {
		if recorder != nil {
			recorder.RecordRateLimited(c.Path())
		}
		slog.InfoContext(c.Request().Context(), "Rate limit exceeded", "client_ip", clientIP, "visualizer_id", c.Param("visualizerId"))

		c.Response().Header().Set("Retry-After", retryAfterSeconds(ratePerSecond))
		return c.JSON(http.StatusTooManyRequests, apperrors.ErrorResponse{
			Error:   "rate limit exceeded",
			Type:    "rate_limited",
			Context: map[string]any{"burst": burst, "ratePerSecond": ratePerSecond},
		})
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) { return c.RealIP(), nil },
		Store:               store,
		DenyHandler:         deny,
	})
}

// retryAfterSeconds is the time until one token is back in the bucket, rounded up.
func retryAfterSeconds(ratePerSecond float64) string {
	if ratePerSecond <= 0 {
		return "60"
	}
	wait := time.Duration(float64(time.Second) / ratePerSecond)
	return strconv.Itoa(int((wait + time.Second - 1) / time.Second))
}
