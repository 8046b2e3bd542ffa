package client

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// connMetrics are the per-connection counters, labelled with the connection id.
type connMetrics struct {
	requests          *metrics.Counter
	responses         *metrics.Counter
	protocolErrors    *metrics.Counter
	droppedResponses  *metrics.Counter
	events            *metrics.Counter
	unknownEvents     *metrics.Counter
	eventDecodeErrors *metrics.Counter
	unknownMessages   *metrics.Counter
	faults            *metrics.Counter

	set   *metrics.Set
	names []string // Everything registered in set, for unregister
}

func newConnMetrics(set *metrics.Set, connID string, pending func() int) *connMetrics {
	m := &connMetrics{set: set}
	name := func(metric string) string {
		n := fmt.Sprintf(`devtools_%s{conn=%q}`, metric, connID)
		m.names = append(m.names, n)
		return n
	}
	counter := func(metric string) *metrics.Counter {
		return set.GetOrCreateCounter(name(metric))
	}

	set.GetOrCreateGauge(name("pending_requests"), func() float64 {
		return float64(pending())
	})

	m.requests = counter("requests_total")
	m.responses = counter("responses_total")
	m.protocolErrors = counter("protocol_errors_total")
	m.droppedResponses = counter("dropped_responses_total")
	m.events = counter("events_total")
	m.unknownEvents = counter("unknown_events_total")
	m.eventDecodeErrors = counter("event_decode_errors_total")
	m.unknownMessages = counter("unknown_messages_total")
	m.faults = counter("faults_total")
	return m
}

// unregister drops this connection's series from the set. The counters stay
// usable but are no longer exported.
func (m *connMetrics) unregister() {
	for _, n := range m.names {
		m.set.UnregisterMetric(n)
	}
}
