// Package metrics exports scan and HTTP metrics to Prometheus.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aiscout/internal/domain/scans"
	"aiscout/internal/engine"
)

const namespace = "aiscout"

// Metrics implements engine.Observer.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runsInProgress  prometheus.Gauge
	repositories    *prometheus.CounterVec
	skippedProbes   prometheus.Counter
	apiCalls        prometheus.Counter
	rateLimited     prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	queueRejections prometheus.Counter
}

var _ engine.Observer = (*Metrics)(nil)

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_runs_total",
			Help:      "Finished scan runs by terminal status.",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_run_duration_seconds",
			Help:      "Wall time of a scan run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}),
		runsInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_runs_in_progress",
			Help:      "Scan runs currently executing.",
		}),
		repositories: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repositories_scanned_total",
			Help:      "Repositories scanned by AI usage outcome.",
		}, []string{"has_ai"}),
		skippedProbes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_probes_total",
			Help:      "Probes skipped because content could not be fetched or parsed.",
		}),
		apiCalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_api_calls_total",
			Help:      "GitHub API requests issued by scan runs.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_rate_limited_total",
			Help:      "GitHub calls abandoned after exhausting rate-limit retries.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		queueRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejections_total",
			Help:      "Scan starts rejected because the run queue was full.",
		}),
	}
}

func (m *Metrics) RunStarted(_ context.Context, _ engine.Job, _ int) {
	m.runsInProgress.Inc()
}

func (m *Metrics) RepositoryScanned(_ context.Context, _ engine.Job, r *scans.Result) {
	if r == nil {
		return
	}
	m.repositories.WithLabelValues(strconv.FormatBool(r.HasAIUsage)).Inc()
	if r.SkippedProbes > 0 {
		m.skippedProbes.Add(float64(r.SkippedProbes))
	}
}

func (m *Metrics) RunFinished(_ context.Context, rep engine.Report) {
	status := scans.StatusCompleted
	if rep.Err != nil {
		status = scans.StatusFailed
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
	if rep.Enumerated {
		m.runsInProgress.Dec()
	}
	if d := rep.FinishedAt.Sub(rep.StartedAt); d >= 0 && !rep.StartedAt.IsZero() {
		m.runDuration.Observe(d.Seconds())
	}
	m.apiCalls.Add(float64(rep.APICalls))
	m.rateLimited.Add(float64(rep.RateLimited))
}

// ObserveHTTP records one served request. route is the matched pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) QueueRejected() {
	m.queueRejections.Inc()
}
