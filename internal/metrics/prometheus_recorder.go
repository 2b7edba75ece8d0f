package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stageDuration   *prom.HistogramVec
	runDuration     prom.Histogram
	stageResults    *prom.CounterVec
	runOutcome      *prom.CounterVec
	requests        *prom.CounterVec
	retries         *prom.CounterVec
	pages           prom.Counter
	assets          prom.Counter
	auditViolations prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "wikimirror",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual sync stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "wikimirror",
			Name:      "run_duration_seconds",
			Help:      "Total sync run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wikimirror",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wikimirror",
			Name:      "run_outcomes_total",
			Help:      "Sync run outcomes by final status",
		}, []string{"outcome"})
		pr.requests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wikimirror",
			Name:      "remote_requests_total",
			Help:      "Remote API requests by result",
		}, []string{"result"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wikimirror",
			Name:      "remote_retries_total",
			Help:      "Remote request retries by operation",
		}, []string{"operation"})
		pr.pages = prom.NewCounter(prom.CounterOpts{
			Namespace: "wikimirror",
			Name:      "pages_processed_total",
			Help:      "Pages fetched and written across runs",
		})
		pr.assets = prom.NewCounter(prom.CounterOpts{
			Namespace: "wikimirror",
			Name:      "assets_downloaded_total",
			Help:      "Binary assets downloaded across runs",
		})
		pr.auditViolations = prom.NewCounter(prom.CounterOpts{
			Namespace: "wikimirror",
			Name:      "audit_violations_total",
			Help:      "Dangling internal references found by the post-write audit",
		})
		reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcome, pr.requests, pr.retries, pr.pages, pr.assets, pr.auditViolations)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRequest(result ResultLabel) {
	if p == nil || p.requests == nil {
		return
	}
	p.requests.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncRetry(op string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) AddPages(n int) {
	if p == nil || p.pages == nil || n <= 0 {
		return
	}
	p.pages.Add(float64(n))
}

func (p *PrometheusRecorder) AddAssets(n int) {
	if p == nil || p.assets == nil || n <= 0 {
		return
	}
	p.assets.Add(float64(n))
}

func (p *PrometheusRecorder) AddAuditViolations(n int) {
	if p == nil || p.auditViolations == nil || n <= 0 {
		return
	}
	p.auditViolations.Add(float64(n))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
