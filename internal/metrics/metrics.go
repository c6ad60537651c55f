package metrics

import (
	"errors"
	"net/http"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dbn"

// Metrics counts inference queries and learner updates by outcome.
type Metrics struct {
	InferTotal  *prometheus.CounterVec
	UpdateTotal *prometheus.CounterVec
	LearnShift  prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		InferTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "infer_total",
				Help:      "Inference queries by result",
			},
			[]string{"result"},
		),
		UpdateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "update_total",
				Help:      "Online learner updates by decision",
			},
			[]string{"result"},
		),
		LearnShift: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_shift",
			Help:      "L1 distance a CPT row moved per committed update",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
	}
	for _, c := range []prometheus.Collector{m.InferTotal, m.UpdateTotal, m.LearnShift} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveInfer records one inference outcome.
func (m *Metrics) ObserveInfer(err error) {
	if m == nil {
		return
	}
	m.InferTotal.WithLabelValues(Result(err)).Inc()
}

// ObserveUpdate records one learner decision and, for commits, the shift.
func (m *Metrics) ObserveUpdate(action string, shift float64) {
	if m == nil {
		return
	}
	m.UpdateTotal.WithLabelValues(action).Inc()
	if action == "commit" {
		m.LearnShift.Observe(shift)
	}
}

// Result maps an inference error to a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dbn.ErrUndefinedCPT):
		return "undefined_cpt"
	case errors.Is(err, dbn.ErrMissingEvidence):
		return "missing_evidence"
	case errors.Is(err, dbn.ErrUndefinedCPTEntry):
		return "undefined_entry"
	default:
		return "error"
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
