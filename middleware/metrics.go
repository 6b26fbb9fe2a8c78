package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for clipjobs metrics.
const meterName = "github.com/clipforge/clipjobs"

// Metrics returns middleware that records per-request metrics using the
// global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - clipjobs.http.duration (Float64Histogram): request time in seconds,
//     with attributes: method, route, status
//   - clipjobs.http.requests (Int64Counter): total requests,
//     with attributes: method, route, status
func Metrics() gin.HandlerFunc {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) gin.HandlerFunc {
	// Create instruments once at middleware construction time. On error,
	// the API returns noop instruments so this degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"clipjobs.http.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	requests, rErr := meter.Int64Counter(
		"clipjobs.http.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	_ = rErr // noop fallback guaranteed by OTel API contract

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start).Seconds()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(c.Writer.Status())),
		)

		duration.Record(c.Request.Context(), elapsed, attrs)
		requests.Add(c.Request.Context(), 1, attrs)
	}
}
