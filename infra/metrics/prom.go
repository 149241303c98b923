package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/rescuedispatch/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	commits     *prometheus.CounterVec
	scores      *prometheus.HistogramVec
	ackLatency  *prometheus.HistogramVec
	rejections  *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The /metrics endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	commits, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rescue_dispatch_commits_total",
		Help: "Committed dispatches by disaster type and dispatch type",
	}, []string{"disaster_type", "dispatch_type"}))
	if err != nil {
		return nil, err
	}
	scores, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rescue_dispatch_team_score",
		Help:    "Overall score of the committed team",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	}, []string{"disaster_type"}))
	if err != nil {
		return nil, err
	}
	ackLatency, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rescue_dispatch_ack_latency_seconds",
		Help:    "Time between dispatch notice and team acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"acknowledged"}))
	if err != nil {
		return nil, err
	}
	rejections, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rescue_gate_rejections_total",
		Help: "Hard rule violations by candidate kind and rule",
	}, []string{"kind", "rule_id"}))
	if err != nil {
		return nil, err
	}
	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rescue_task_transitions_total",
		Help: "Task status transitions by target status",
	}, []string{"to"}))
	if err != nil {
		return nil, err
	}
	return &PromSink{
		commits:     commits,
		scores:      scores,
		ackLatency:  ackLatency,
		rejections:  rejections,
		transitions: transitions,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatchResult counts committed dispatches.
func (s *PromSink) RecordDispatchResult(res []coremetrics.DispatchResult) error {
	for _, r := range res {
		s.commits.WithLabelValues(string(r.DisasterType), string(r.Type)).Inc()
		s.scores.WithLabelValues(string(r.DisasterType)).Observe(r.Score)
	}
	return nil
}

// RecordDispatchAck observes the acknowledgment latency.
func (s *PromSink) RecordDispatchAck(ev coremetrics.DispatchAckEvent) error {
	s.ackLatency.WithLabelValues(strconv.FormatBool(ev.Acknowledged)).Observe(ev.Latency.Seconds())
	return nil
}

// RecordRejection counts one violation per rule.
func (s *PromSink) RecordRejection(ev coremetrics.RejectionEvent) error {
	for _, id := range ev.RuleIDs {
		s.rejections.WithLabelValues(ev.Kind, id).Inc()
	}
	return nil
}

// RecordTaskTransition counts transitions by target status.
func (s *PromSink) RecordTaskTransition(ev coremetrics.TaskTransitionEvent) error {
	s.transitions.WithLabelValues(string(ev.To)).Inc()
	return nil
}
