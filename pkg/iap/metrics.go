package iap

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for reconciliation activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	events        *prometheus.CounterVec
	loopRestarts  *prometheus.CounterVec
	purchases     *prometheus.CounterVec
	notifsDropped prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered by a previous call are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iapkit",
			Subsystem: "reconciler",
			Name:      "events_total",
			Help:      "Inbound update events by stream and classification.",
		}, []string{"stream", "result"}),
		loopRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iapkit",
			Subsystem: "reconciler",
			Name:      "loop_restarts_total",
			Help:      "Listener loop restarts by stream and reason.",
		}, []string{"stream", "reason"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iapkit",
			Subsystem: "purchase",
			Name:      "attempts_total",
			Help:      "Finished purchase attempts by final state.",
		}, []string{"state"}),
		notifsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iapkit",
			Subsystem: "notifications",
			Name:      "dropped_total",
			Help:      "Entitlement notifications dropped for slow subscribers.",
		}),
	}

	m.events = register(reg, m.events)
	m.loopRestarts = register(reg, m.loopRestarts)
	m.purchases = register(reg, m.purchases)
	m.notifsDropped = register(reg, m.notifsDropped)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) eventHandled(stream, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(stream, result).Inc()
}

func (m *Metrics) loopRestarted(stream, reason string) {
	if m == nil {
		return
	}
	m.loopRestarts.WithLabelValues(stream, reason).Inc()
}

func (m *Metrics) purchaseFinished(state PurchaseState) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) notificationDropped() {
	if m == nil {
		return
	}
	m.notifsDropped.Inc()
}
