package netconf

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by a [Factory] as messages are
// built and released.  A nil *Metrics disables collection.
type Metrics struct {
	RequestsBuilt         *prometheus.CounterVec
	RequestsReleased      *prometheus.CounterVec
	BuildFailures         *prometheus.CounterVec
	RepliesParsed         *prometheus.CounterVec
	RepliesReleased       *prometheus.CounterVec
	NotificationsParsed   prometheus.Counter
	NotificationsReleased prometheus.Counter
	DictEntries           prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.  A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netconf",
				Name:      "requests_built_total",
				Help:      "Total number of requests built by the factory",
			},
			[]string{"kind"},
		),
		RequestsReleased: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netconf",
				Name:      "requests_released_total",
				Help:      "Total number of requests released",
			},
			[]string{"kind"},
		),
		BuildFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netconf",
				Name:      "request_build_failures_total",
				Help:      "Total number of rejected request constructions",
			},
			[]string{"kind", "reason"},
		),
		RepliesParsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netconf",
				Name:      "replies_parsed_total",
				Help:      "Total number of rpc-reply messages decoded",
			},
			[]string{"type"},
		),
		RepliesReleased: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netconf",
				Name:      "replies_released_total",
				Help:      "Total number of replies released",
			},
			[]string{"type"},
		),
		NotificationsParsed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "netconf",
				Name:      "notifications_parsed_total",
				Help:      "Total number of notifications decoded",
			},
		),
		NotificationsReleased: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "netconf",
				Name:      "notifications_released_total",
				Help:      "Total number of notifications released",
			},
		),
		DictEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netconf",
				Name:      "dict_entries",
				Help:      "Number of distinct strings held by the error reply string pool",
			},
		),
	}
}

func (m *Metrics) requestBuilt(k Kind) {
	if m == nil {
		return
	}
	m.RequestsBuilt.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) requestReleased(k Kind) {
	if m == nil {
		return
	}
	m.RequestsReleased.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) buildFailed(k Kind, reason string) {
	if m == nil {
		return
	}
	m.BuildFailures.WithLabelValues(k.String(), reason).Inc()
}

func (m *Metrics) replyParsed(t ReplyType) {
	if m == nil {
		return
	}
	m.RepliesParsed.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) replyReleased(t ReplyType) {
	if m == nil {
		return
	}
	m.RepliesReleased.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) notificationParsed() {
	if m == nil {
		return
	}
	m.NotificationsParsed.Inc()
}

func (m *Metrics) notificationReleased() {
	if m == nil {
		return
	}
	m.NotificationsReleased.Inc()
}

func (m *Metrics) dictSize(d *Dict) {
	if m == nil || d == nil {
		return
	}
	m.DictEntries.Set(float64(d.Len()))
}
