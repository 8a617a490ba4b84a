package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedLimits struct {
	routes []string
}

func (r *recordedLimits) RecordRateLimited(route string) {
	r.routes = append(r.routes, route)
}

// limitedHandler wraps an always-OK handler and returns a function that
// issues one GET from the given remote address.
func limitedHandler(ratePerSecond float64, burst int, recorder rateLimitRecorder) func(remoteAddr string) *httptest.ResponseRecorder {
	e := echo.New()
	handler := newRateLimiter(ratePerSecond, burst, recorder)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/activators/content/lobby", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetPath("/api/activators/content/:visualizerId")
		c.SetParamNames("visualizerId")
		c.SetParamValues("lobby")
		_ = handler(c)
		return rec
	}
}

func TestRateLimiter_BurstIsServed(t *testing.T) {
	get := limitedHandler(10, 3, nil)

	for i := range 3 {
		assert.Equal(t, http.StatusOK, get("1.2.3.4:1234").Code, "request %d", i)
	}
}

func TestRateLimiter_RejectsBeyondBurst(t *testing.T) {
	recorder := &recordedLimits{}
	get := limitedHandler(0.5, 1, recorder)

	require.Equal(t, http.StatusOK, get("1.2.3.4:1234").Code)
	rec := get("1.2.3.4:1234")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body struct {
		Error   string         `json:"error"`
		Type    string         `json:"type"`
		Context map[string]any `json:"context"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body.Error)
	assert.Equal(t, "rate_limited", body.Type)
	assert.InDelta(t, 1, body.Context["burst"], 0)

	assert.Equal(t, []string{"/api/activators/content/:visualizerId"}, recorder.routes)
}

func TestRateLimiter_BucketsArePerClientIP(t *testing.T) {
	get := limitedHandler(0.01, 1, nil)

	assert.Equal(t, http.StatusOK, get("1.2.3.4:1234").Code)
	assert.Equal(t, http.StatusOK, get("5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, get("1.2.3.4:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, get("5.6.7.8:5678").Code)
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{10, "1"},
		{1, "1"},
		{0.5, "2"},
		{0.3, "4"},
		{0, "60"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryAfterSeconds(tt.rate), "rate %v", tt.rate)
	}
}
