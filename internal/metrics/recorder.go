package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess     ResultLabel = "success"
	ResultWarning     ResultLabel = "warning"
	ResultFatal       ResultLabel = "fatal"
	ResultCanceled    ResultLabel = "canceled"
	ResultError       ResultLabel = "error"
	ResultRateLimited ResultLabel = "rate_limited"
)

// Recorder defines observability hooks for sync-run and stage metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe on the
// NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome string) // outcome: success|audit_failed|failed|canceled
	IncRequest(result ResultLabel)
	IncRetry(op string)
	AddPages(n int)
	AddAssets(n int)
	AddAuditViolations(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(string)                       {}
func (NoopRecorder) IncRequest(ResultLabel)                     {}
func (NoopRecorder) IncRetry(string)                            {}
func (NoopRecorder) AddPages(int)                               {}
func (NoopRecorder) AddAssets(int)                              {}
func (NoopRecorder) AddAuditViolations(int)                     {}
