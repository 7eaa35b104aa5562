package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// diagRoutes are the only paths the diagnostics server serves. Anything
// else is collapsed into one label value so probes and scanners cannot
// grow metric cardinality.
var diagRoutes = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// HTTPMetricsMiddleware instruments diagnostics HTTP handlers. Only
// method, bounded route path, and status code become labels.
func HTTPMetricsMiddleware(metrics *MetricsCollector, tracer trace.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if !diagRoutes[path] {
			path = "other"
		}

		if tracer != nil {
			ctx, span := tracer.Start(r.Context(), "diag.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.path", path),
				))
			defer span.End()
			r = r.WithContext(ctx)
		}

		if metrics != nil {
			metrics.ActiveRequests.Inc()
			defer metrics.ActiveRequests.Dec()
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		if metrics != nil {
			duration := time.Since(start).Seconds()
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, statusCode(rec.code)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		}
	})
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
