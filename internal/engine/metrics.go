package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine outcomes. A nil *Metrics records nothing.
type Metrics struct {
	pushes       *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	pulledEvents prometheus.Counter
	denied       *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synclog",
			Name:      "push_total",
			Help:      "Push requests by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synclog",
			Name:      "push_conflicts_total",
			Help:      "Rejected pushes by conflict reason.",
		}, []string{"reason"}),
		pulledEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synclog",
			Name:      "pulled_events_total",
			Help:      "Events returned by pulls.",
		}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synclog",
			Name:      "access_denied_total",
			Help:      "Requests refused by access policy or ownership guard.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.pushes, m.conflicts, m.pulledEvents, m.denied)
	return m
}

func (m *Metrics) pushCommitted() {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues("committed").Inc()
}

func (m *Metrics) pushProbe() {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues("probe").Inc()
}

func (m *Metrics) conflict(reason ConflictReason) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues("conflict").Inc()
	m.conflicts.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) pulled(n int) {
	if m == nil {
		return
	}
	m.pulledEvents.Add(float64(n))
}

func (m *Metrics) accessDenied(op string) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(op).Inc()
}
