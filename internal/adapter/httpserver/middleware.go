package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/activate/internal/domain"
	"github.com/pscheid92/activate/internal/platform/correlation"
	apperrors "github.com/pscheid92/activate/internal/platform/errors"
	"github.com/sony/gobreaker"
)

// errorMappings classifies domain and dependency errors for API responses.
var errorMappings = []apperrors.Mapping{
	{Target: domain.ErrChannelNotFound, Type: apperrors.TypeNotFound},
	{Target: domain.ErrMediaNotFound, Type: apperrors.TypeNotFound},
	{Target: gobreaker.ErrOpenState, Type: apperrors.TypeUnavailable, Message: "storage temporarily unavailable"},
	{Target: circuitbreaker.ErrOpen, Type: apperrors.TypeUnavailable, Message: "cache temporarily unavailable"},
}

// correlationMiddleware adopts a well-formed X-Correlation-ID from the caller,
// minting one otherwise, and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx, id := correlation.Adopt(req.Context(), req.Header.Get(correlation.Header))
		c.SetRequest(req.WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware renders handler errors as structured JSON.
// echo's own HTTP errors (404 routes, 401 from key auth) pass through.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.Classify(err, errorMappings...)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeConflict, apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Request failed", attrs...)
	default:
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}
