package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "botfleet"

// Metrics holds all Prometheus metrics of the fleet runtime.
type Metrics struct {
	InstancesRunning prometheus.Gauge
	InstanceStarts   *prometheus.CounterVec
	GateDecisions    *prometheus.CounterVec
	SessionCache     *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	UpdatesHandled   *prometheus.CounterVec
}

// New registers the metrics on reg. A nil reg yields unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InstancesRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "instances_running",
			Help:      "Number of tenant bot instances currently registered.",
		}),
		InstanceStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "instance_starts_total",
			Help:      "Instance start attempts by result.",
		}, []string{"result"}), // result: ok, error
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"decision"}), // decision: admit, owner, expired, quota, error
		SessionCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "cache_lookups_total",
			Help:      "Session cache lookups by result.",
		}, []string{"result"}), // result: hit, miss
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Payment notifications by outcome.",
		}, []string{"outcome"}), // outcome: renewed, ignored, duplicate, unresolved, not_found, error
		UpdatesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "updates_total",
			Help:      "Inbound updates dispatched by kind.",
		}, []string{"kind"}), // kind: command, action, text, unhandled
	}
}

// NewNop returns metrics that are not registered anywhere
func NewNop() *Metrics {
	return New(nil)
}
