package timelock

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what an Engine and its Store do. A nil *Metrics records
// nothing
type Metrics struct {
	operations *prometheus.CounterVec
	appended   *prometheus.CounterVec
	conflicts  prometheus.Counter
}

const (
	metricsNamespace = "timelock"

	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// NewMetrics creates the collectors and registers them with reg, if given
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Escrow mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_appended_total",
			Help:      "Events committed to a backend, by type.",
		}, []string{"type"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "append_conflicts_total",
			Help:      "Appends that lost the race to another writer.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.appended, m.conflicts)
	}
	return m
}

// Operations returns the operations counter for op and outcome
func (m *Metrics) Operations(op, outcome string) prometheus.Counter {
	return m.operations.WithLabelValues(op, outcome)
}

// Appended returns the committed events counter for typ
func (m *Metrics) Appended(typ EventType) prometheus.Counter {
	return m.appended.WithLabelValues(string(typ))
}

// Conflicts returns the append conflicts counter
func (m *Metrics) Conflicts() prometheus.Counter {
	return m.conflicts
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	m.Operations(op, outcome(err)).Inc()
}

func (m *Metrics) observeAppend(evs []*Event) {
	if m == nil {
		return
	}
	for _, ev := range evs {
		m.Appended(ev.Type).Inc()
	}
}

func (m *Metrics) observeConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case IsRejection(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
