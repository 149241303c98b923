// Package metrics defines the sinks that record dispatch outcomes, team
// acknowledgments, gate rejections and task transitions. Concrete sinks live
// in infra/metrics and register themselves by name; NewMetricsSink builds a
// MultiSink automatically when several sinks are configured.
package metrics
