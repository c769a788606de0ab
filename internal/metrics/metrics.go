// Package metrics exposes planner progress as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/gridplan/internal/optimization"
)

const namespace = "gridplan"

// Metrics holds the planner collectors.
type Metrics struct {
	Iterations     prometheus.Counter
	BestScore      *prometheus.GaugeVec
	CloneEvents    prometheus.Counter
	GenesCulled    prometheus.Histogram
	EvaluationTime prometheus.Histogram
	RunsActive     prometheus.Gauge
	RunsTotal      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Genetic search iterations completed across all runs.",
		}),
		BestScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_score",
			Help:      "Best score of the latest iteration, per run.",
		}, []string{"run"}),
		CloneEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clone_events_total",
			Help:      "Times a population was found converged and re-mutated.",
		}),
		GenesCulled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "genes_culled",
			Help:      "Genes removed by the cull in each iteration.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		EvaluationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_seconds",
			Help:      "Duration of a single fitness evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		RunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently executing.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by final status.",
		}, []string{"status"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Iterations, m.BestScore, m.CloneEvents, m.GenesCulled,
		m.EvaluationTime, m.RunsActive, m.RunsTotal,
	}
}

// ObserveIteration records one iteration of run.
func (m *Metrics) ObserveIteration(run string, s optimization.IterationStats) {
	m.Iterations.Inc()
	m.BestScore.WithLabelValues(run).Set(s.Best)
	m.GenesCulled.Observe(float64(s.Culled))
	if s.Cloned {
		m.CloneEvents.Inc()
	}
}

// ObserveEvaluation records one fitness call.
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	m.EvaluationTime.Observe(d.Seconds())
}

// RunStarted marks a run as executing.
func (m *Metrics) RunStarted() {
	m.RunsActive.Inc()
}

// RunFinished marks a run as done with status and drops its score gauge.
func (m *Metrics) RunFinished(run, status string) {
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.BestScore.DeleteLabelValues(run)
}
