package http

import (
	"context"
	"strconv"
	"time"

	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/ports"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Job metrics
	jobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_transitions_total",
			Help: "Total number of job status transitions",
		},
		[]string{"status"},
	)

	generationProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "generation_progress_percent",
			Help: "Progress of the currently running generation",
		},
	)

	jobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of jobs waiting in queue",
		},
	)
)

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics for WebSocket upgrade requests
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// SetQueueDepth sets the current queue depth
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// MetricsConsumer feeds job and progress events from the bus into Prometheus.
// Blocks until ctx is cancelled.
func MetricsConsumer(ctx context.Context, bus ports.EventBus) {
	progress, err := bus.SubscribeProgress(ctx)
	if err != nil {
		return
	}
	updates, err := bus.SubscribeJobUpdates(ctx)
	if err != nil {
		return
	}

	started := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-progress:
			if !ok {
				return
			}
			generationProgress.Set(ev.Percent)
		case ev, ok := <-updates:
			if !ok {
				return
			}
			jobTransitions.WithLabelValues(string(ev.Status)).Inc()
			switch {
			case ev.Status == domain.JobStatusRunning:
				started[ev.JobID] = time.Now()
			case ev.Status.Terminal() || ev.Status == domain.JobStatusFailed:
				if t0, ok := started[ev.JobID]; ok {
					jobDuration.Observe(time.Since(t0).Seconds())
					delete(started, ev.JobID)
				}
				generationProgress.Set(0)
			}
		}
	}
}
