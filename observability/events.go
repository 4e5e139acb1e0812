package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"merkledrop/core/events"
	"merkledrop/native/distributor"
)

type eventMetrics struct {
	events  *prometheus.CounterVec
	amounts *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking distributor events. It is an
// events.Emitter so it can be attached next to the claim index.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "merkledrop",
				Subsystem: "events",
				Name:      "total",
				Help:      "Count of committed distributor events segmented by type.",
			}, []string{"type"}),
			amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "merkledrop",
				Subsystem: "events",
				Name:      "amount_total",
				Help:      "Token amount moved by committed distributor events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.events, eventRegistry.amounts)
	})
	return eventRegistry
}

var _ events.Emitter = (*eventMetrics)(nil)

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil || evt.Event() == nil {
		return
	}
	payload := evt.Event()
	m.events.WithLabelValues(payload.Type).Inc()
	switch payload.Type {
	case distributor.EventTypeNewClaim, distributor.EventTypeClaimed,
		distributor.EventTypeClawback, distributor.EventTypeFunded:
		amount, err := strconv.ParseUint(payload.Attr("amount"), 10, 64)
		if err == nil {
			m.amounts.WithLabelValues(payload.Type).Add(float64(amount))
		}
	}
}
