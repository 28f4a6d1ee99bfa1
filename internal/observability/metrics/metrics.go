package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook relay flow.
type RelayMetrics struct {
	inboundTotal      *prometheus.CounterVec
	repliesTotal      *prometheus.CounterVec
	generationLatency prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linegem",
			Subsystem: "relay",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound LINE webhook events",
		}, []string{"event_type", "status"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linegem",
			Subsystem: "relay",
			Name:      "replies_total",
			Help:      "Total outbound replies by outcome",
		}, []string{"outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linegem",
			Subsystem: "relay",
			Name:      "generation_latency_seconds",
			Help:      "Latency of generation backend calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.repliesTotal, m.generationLatency)
	return m
}

func (m *RelayMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *RelayMetrics) ObserveReply(outcome string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveGenerationLatency(seconds float64) {
	if m == nil {
		return
	}
	m.generationLatency.Observe(seconds)
}
