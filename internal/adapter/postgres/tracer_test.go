package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/activate/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
)

func TestQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT 1", "SELECT"},
		{"\n\tupdate activators set is_active = $2", "UPDATE"},
		{"", "unknown"},
		{"   ", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queryName(tt.sql), tt.sql)
	}
}

func TestMetricsTracer_RecordsErrors(t *testing.T) {
	dbMetrics := metrics.NewDBMetrics(prometheus.NewRegistry())
	tracer := NewMetricsTracer(dbMetrics)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "DELETE FROM activators"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	assert.InDelta(t, 1, testutil.ToFloat64(dbMetrics.QueryErrors.WithLabelValues("DELETE")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(dbMetrics.QueryErrors.WithLabelValues("SELECT")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(dbMetrics.QueryDuration))
}

func TestMetricsTracer_IgnoresForeignContext(t *testing.T) {
	dbMetrics := metrics.NewDBMetrics(prometheus.NewRegistry())
	NewMetricsTracer(dbMetrics).TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	assert.Equal(t, 0, testutil.CollectAndCount(dbMetrics.QueryDuration))
}
