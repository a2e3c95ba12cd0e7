// Package metrics holds the Prometheus metrics of the signal jobs and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/prepcards/core/signal"
)

type Metrics struct {
	JobRuns        *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	JobEmpty       *prometheus.CounterVec
	FlagChanges    *prometheus.CounterVec
	SignalsMissing *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers the metrics on the default registry. It always returns the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			JobRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "prepcards_job_runs_total",
					Help: "Total number of signal job runs",
				},
				[]string{"job", "result"},
			),
			JobDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "prepcards_job_duration_seconds",
					Help:    "Duration of signal job runs in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to 82s
				},
				[]string{"job"},
			),
			JobEmpty: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "prepcards_job_empty_runs_total",
					Help: "Total number of job runs that found no data",
				},
				[]string{"job"},
			),
			FlagChanges: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "prepcards_flag_changes_total",
					Help: "Total number of flag state changes",
				},
				[]string{"change"},
			),
			SignalsMissing: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "prepcards_theme_signals_missing_total",
					Help: "Total number of theme groups skipped because their signal did not exist",
				},
				[]string{"job"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "prepcards_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "prepcards_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})
	return sharedMetrics
}

// ObserveJob records a job run started at start.
func (m *Metrics) ObserveJob(job string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// ObserveResult records the outcome counters of a job result.
func (m *Metrics) ObserveResult(job string, res interface{}) {
	switch r := res.(type) {
	case signal.AggregateResult:
		m.observeEmpty(job, r.Empty)
	case signal.ThemeResult:
		m.observeEmpty(job, r.Empty)
		m.SignalsMissing.WithLabelValues(job).Add(float64(r.Missing))
	case signal.FlagResult:
		m.observeEmpty(job, r.Empty)
		m.FlagChanges.WithLabelValues(signal.ChangeFlagged.String()).Add(float64(r.Flagged))
		m.FlagChanges.WithLabelValues(signal.ChangeResolved.String()).Add(float64(r.Resolved))
		m.FlagChanges.WithLabelValues(signal.ChangeReason.String()).Add(float64(r.Refreshed))
	case signal.PipelineResult:
		m.ObserveResult("aggregate", r.Aggregate)
		m.ObserveResult("themes", r.Themes)
		m.ObserveResult("crp-themes", r.CRPThemes)
		m.ObserveResult("flag", r.Flag)
	}
}

func (m *Metrics) observeEmpty(job string, empty bool) {
	if empty {
		m.JobEmpty.WithLabelValues(job).Inc()
	}
}

// Middleware records the count and duration of HTTP requests, labelled by route path.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, c.Path()).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the metrics of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
