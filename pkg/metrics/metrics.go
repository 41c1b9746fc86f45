package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager holds the service's Prometheus collectors on a private registry.
type MetricsManager struct {
	Registry               *prometheus.Registry
	BidsSubmitted          *prometheus.CounterVec
	BidDecisionLatency     prometheus.Histogram
	NotificationsPublished *prometheus.CounterVec
	NotificationsDropped   *prometheus.CounterVec
	WebsocketConnections   prometheus.Gauge
}

func NewMetricsManager(serviceName string) *MetricsManager {
	registry := prometheus.NewRegistry()

	bidsSubmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "bids_submitted_total",
		Help:      "Bid submissions by outcome (accepted or the rejection kind).",
	}, []string{"outcome"})

	bidDecisionLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "bid_decision_seconds",
		Help:      "Time from bid receipt to accept/reject decision.",
		Buckets:   prometheus.DefBuckets,
	})

	notificationsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "notifications_published_total",
		Help:      "Change events published, by event type.",
	}, []string{"type"})

	notificationsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "notifications_dropped_total",
		Help:      "Change events not delivered to an observer, by reason.",
	}, []string{"reason"})

	websocketConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: serviceName,
		Name:      "websocket_connections",
		Help:      "Open websocket connections.",
	})

	registry.MustRegister(
		bidsSubmitted,
		bidDecisionLatency,
		notificationsPublished,
		notificationsDropped,
		websocketConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsManager{
		Registry:               registry,
		BidsSubmitted:          bidsSubmitted,
		BidDecisionLatency:     bidDecisionLatency,
		NotificationsPublished: notificationsPublished,
		NotificationsDropped:   notificationsDropped,
		WebsocketConnections:   websocketConnections,
	}
}

// ObserveBid records one arbiter decision. A nil manager is a no-op so
// components can run without metrics in tests.
func (m *MetricsManager) ObserveBid(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BidsSubmitted.WithLabelValues(outcome).Inc()
	m.BidDecisionLatency.Observe(elapsed.Seconds())
}

func (m *MetricsManager) ObservePublished(eventType string) {
	if m == nil {
		return
	}
	m.NotificationsPublished.WithLabelValues(eventType).Inc()
}

func (m *MetricsManager) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	m.NotificationsDropped.WithLabelValues(reason).Inc()
}

func (m *MetricsManager) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WebsocketConnections.Inc()
}

func (m *MetricsManager) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WebsocketConnections.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
