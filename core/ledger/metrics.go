package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operations          *prometheus.CounterVec
	infeasibleTotal     *prometheus.CounterVec
	invariantViolations *prometheus.CounterVec
	haltedAggregates    *prometheus.GaugeVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.GaugeVec) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Capacity ledger commits by operation and result",
		},
		[]string{"op", "result"},
	)
	inf := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_infeasible_total",
			Help: "Rejected loads and mounts by reason",
		},
		[]string{"reason"},
	)
	inv := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Detected drifts between live totals and loaded items",
		},
		[]string{"kind"},
	)
	halted := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_halted_aggregates",
			Help: "Vehicles and devices refusing mutation until reconciled",
		},
		[]string{"kind"},
	)
	return ops, inf, inv, halted
}

func init() {
	operations, infeasibleTotal, invariantViolations, haltedAggregates = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the ledger collectors. A nil reg selects
// prometheus.DefaultRegisterer.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(operations, infeasibleTotal, invariantViolations, haltedAggregates)
}

// ResetMetrics recreates the collectors, registering them on reg when it is
// not nil. Used by tests.
func ResetMetrics(reg prometheus.Registerer) {
	operations, infeasibleTotal, invariantViolations, haltedAggregates = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
