package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/store"
)

const httpInstrumentationName = "github.com/jking323/TaskHarvester/internal/http"

// HTTPMetrics records API traffic and what callers did with it: how large
// extraction batches are, how their documents ended, and how reviewers move
// items through the queue. A nil *HTTPMetrics records nothing.
type HTTPMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	requests      metric.Int64Counter
	duration      metric.Float64Histogram
	batchSize     metric.Int64Histogram
	documents     metric.Int64Counter
	itemsByTier   metric.Int64Counter
	reviewChanges metric.Int64Counter
}

// NewHTTPMetrics creates metrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{meter: meter, logger: logger}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	m.requests, err = m.meter.Int64Counter(
		"taskharvester.http.requests_total",
		metric.WithDescription("API requests by route, method and status class (2xx, 4xx, 5xx)."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Extraction requests run for as long as the model takes, so the
	// buckets reach well past typical API latencies.
	m.duration, err = m.meter.Float64Histogram(
		"taskharvester.http.request_duration_seconds",
		metric.WithDescription("API request duration by route and method."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"taskharvester.http.extract.batch_documents",
		metric.WithDescription("Documents per POST /api/v1/extract request."),
		metric.WithUnit("{document}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.documents, err = m.meter.Int64Counter(
		"taskharvester.http.extract.documents_total",
		metric.WithDescription("Documents served through the API by outcome (succeeded, failed, skipped)."),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		m.logger.Warn("failed to create documents counter", zap.Error(err))
	}

	m.itemsByTier, err = m.meter.Int64Counter(
		"taskharvester.http.extract.items_total",
		metric.WithDescription("Action items returned through the API by review tier."),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		m.logger.Warn("failed to create items counter", zap.Error(err))
	}

	m.reviewChanges, err = m.meter.Int64Counter(
		"taskharvester.http.review.status_changes_total",
		metric.WithDescription("Review queue status changes made through the API, by new status."),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		m.logger.Warn("failed to create review counter", zap.Error(err))
	}
}

// MetricsMiddleware records request count and duration per route.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if m == nil {
				return err
			}

			// The error handler has not written the response yet.
			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			ctx := c.Request().Context()
			route := attribute.String("route", routeLabel(c.Path()))
			method := attribute.String("method", c.Request().Method)
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(route, method))
			}
			if m.requests != nil {
				m.requests.Add(ctx, 1, metric.WithAttributes(route, method,
					attribute.String("status_class", statusClass(status))))
			}
			return err
		}
	}
}

// RecordExtract records one served extraction batch.
func (m *HTTPMetrics) RecordExtract(ctx context.Context, s extraction.BatchSummary) {
	if m == nil {
		return
	}
	if m.batchSize != nil {
		m.batchSize.Record(ctx, int64(s.Documents))
	}
	if m.documents != nil {
		for outcome, n := range map[string]int{
			"succeeded": s.Succeeded,
			"failed":    s.Failed,
			"skipped":   s.Skipped,
		} {
			if n > 0 {
				m.documents.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
			}
		}
	}
	if m.itemsByTier != nil {
		for tier, n := range s.ByTier {
			if n > 0 {
				m.itemsByTier.Add(ctx, int64(n), metric.WithAttributes(attribute.String("tier", string(tier))))
			}
		}
	}
}

// RecordReview records a reviewer moving an item to status.
func (m *HTTPMetrics) RecordReview(ctx context.Context, status store.Status) {
	if m == nil || m.reviewChanges == nil {
		return
	}
	m.reviewChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

// routeLabel turns echo's route pattern into the route label. The pattern
// keeps parameters as ":id", so item ids never become labels. Requests that
// matched no route have an empty pattern.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
