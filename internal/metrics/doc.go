// Package metrics provides observability hooks for sync runs.
//
// It implements the Null Object pattern: components receive a Recorder
// through dependency injection and default to NoopRecorder, so metrics
// collection never requires nil checks at call sites.
//
//	client := confluence.New(cfg) // uses metrics.NoopRecorder{}
//	client.SetRecorder(metrics.NewPrometheusRecorder(registry))
//
// The Prometheus implementation is registered only when the daemon (or a
// --metrics-listen flag) exposes a scrape endpoint; one-shot runs stay on
// the noop recorder with zero overhead.
package metrics
