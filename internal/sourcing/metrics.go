package sourcing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the sourcing pipeline.
type Metrics struct {
	evaluated  prometheus.Counter
	rejections *prometheus.CounterVec
	imports    *prometheus.CounterVec
	runs       *prometheus.CounterVec
}

// NewMetrics registers sourcing collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_sourcing_candidates_evaluated_total",
			Help: "Candidates checked by the margin evaluator.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_sourcing_rejections_total",
			Help: "Candidate rejections by reason.",
		}, []string{"reason"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_sourcing_imports_total",
			Help: "Import attempts by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_sourcing_runs_total",
			Help: "Sourcing runs by trigger and terminal status.",
		}, []string{"trigger", "status"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.evaluated, m.rejections, m.imports, m.runs)
	}
	return m
}

// ObserveEvaluation records the evaluator outcome of a batch.
func (m *Metrics) ObserveEvaluation(evaluated int, rejected []Rejection) {
	if m == nil {
		return
	}
	m.evaluated.Add(float64(evaluated))
	for _, r := range rejected {
		for _, reason := range r.Reasons {
			m.rejections.WithLabelValues(string(reason)).Inc()
		}
	}
}

// ObserveImport counts a single import attempt.
func (m *Metrics) ObserveImport(ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "imported"
	}
	m.imports.WithLabelValues(outcome).Inc()
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(run SourcingRun) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(run.Trigger), string(run.Status)).Inc()
}
