package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/store"
)

func newTestMetrics(t *testing.T) (*HTTPMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return newHTTPMetrics(mp.Meter(httpInstrumentationName), nil), reader
}

// counterValues sums a counter's data points by the value of key.
func counterValues(t *testing.T, reader *sdkmetric.ManualReader, name, key string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	m, reader := newTestMetrics(t)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/extract", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	})
	e.GET("/api/v1/action-items/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/extract"},
		{http.MethodGet, "/api/v1/action-items/7f3c"},
		{http.MethodGet, "/api/v1/action-items/9a1b"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	routes := counterValues(t, reader, "taskharvester.http.requests_total", "route")
	assert.Equal(t, map[string]int64{
		"/health":                  1,
		"/api/v1/extract":          1,
		"/api/v1/action-items/:id": 2,
	}, routes, "item ids never become labels")

	classes := counterValues(t, reader, "taskharvester.http.requests_total", "status_class")
	assert.Equal(t, map[string]int64{"2xx": 3, "4xx": 1}, classes)
}

func TestHTTPMetrics_RecordExtract(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordExtract(context.Background(), extraction.BatchSummary{
		Documents: 4,
		Succeeded: 2,
		Failed:    1,
		Skipped:   1,
		Items:     3,
		ByTier: map[extraction.ReviewTier]int{
			extraction.TierAutoAccept:  1,
			extraction.TierNeedsReview: 2,
		},
	})

	assert.Equal(t, map[string]int64{"succeeded": 2, "failed": 1, "skipped": 1},
		counterValues(t, reader, "taskharvester.http.extract.documents_total", "outcome"))
	assert.Equal(t, map[string]int64{"auto_accept": 1, "needs_review": 2},
		counterValues(t, reader, "taskharvester.http.extract.items_total", "tier"))
}

func TestHTTPMetrics_RecordReview(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordReview(ctx, store.StatusApproved)
	m.RecordReview(ctx, store.StatusApproved)
	m.RecordReview(ctx, store.StatusRejected)

	assert.Equal(t, map[string]int64{"approved": 2, "rejected": 1},
		counterValues(t, reader, "taskharvester.http.review.status_changes_total", "status"))
}

func TestHTTPMetrics_NilIsNoop(t *testing.T) {
	var m *HTTPMetrics
	assert.NotPanics(t, func() {
		m.RecordExtract(context.Background(), extraction.BatchSummary{Documents: 1, Succeeded: 1})
		m.RecordReview(context.Background(), store.StatusCompleted)
	})
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/action-items/:id", routeLabel("/api/v1/action-items/:id"))
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusClass(tt.code), "code %d", tt.code)
	}
}
