package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	commitsTotal    *prometheus.CounterVec
	autoOutcomes    *prometheus.CounterVec
	gateRejections  *prometheus.CounterVec
	matchLatency    *prometheus.HistogramVec
	ackLatency      *prometheus.HistogramVec
	notifyFailures  prometheus.Counter
	taskTransitions *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.HistogramVec, prometheus.Counter, *prometheus.CounterVec) {
	commits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_commits_total",
			Help: "Dispatch commit attempts by dispatch type and result",
		},
		[]string{"type", "result"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_auto_outcomes_total",
			Help: "Automatic dispatch outcomes",
		},
		[]string{"outcome"},
	)
	rejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_gate_rejections_total",
			Help: "Candidates and plans vetoed by hard rules",
		},
		[]string{"kind"},
	)
	match := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_match_duration_seconds",
			Help:    "Time spent scoring and gating a candidate pool",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"kind"},
	)
	ack := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_ack_latency_seconds",
			Help:    "Latency of dispatch notices from publish to team acknowledgment",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"acknowledged"},
	)
	notify := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_notify_failures_total",
			Help: "Dispatch notices that could not be published",
		},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_task_transitions_total",
			Help: "Task status transitions applied by the engine",
		},
		[]string{"to"},
	)
	return commits, outcomes, rejections, match, ack, notify, transitions
}

func init() {
	commitsTotal, autoOutcomes, gateRejections, matchLatency, ackLatency, notifyFailures, taskTransitions = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(commitsTotal, autoOutcomes, gateRejections, matchLatency, ackLatency, notifyFailures, taskTransitions)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	commitsTotal, autoOutcomes, gateRejections, matchLatency, ackLatency, notifyFailures, taskTransitions = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
