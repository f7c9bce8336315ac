package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	ActiveSessions = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "proctorgate_active_sessions",
			Help: "Number of live monitoring sessions",
		},
	)

	PortsInUse = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "proctorgate_ports_in_use",
			Help: "Number of ports currently bound to sessions",
		},
	)

	ConnectionsRejected = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_connections_rejected_total",
			Help: "Connections rejected before session binding",
		},
		[]string{"reason"},
	)

	BansApplied = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_bans_applied_total",
			Help: "Bans applied per escalation level",
		},
		[]string{"level"},
	)

	EventsIngested = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_events_ingested_total",
			Help: "Security events accepted into the risk pipeline",
		},
		[]string{"category"},
	)

	AlertsRaised = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "proctorgate_alerts_raised_total",
			Help: "Security alerts raised by risk threshold crossings",
		},
	)

	SessionsEnded = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctorgate_sessions_ended_total",
			Help: "Sessions terminated, labelled by reason",
		},
		[]string{"reason"},
	)
)

func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}

func Registry() *prometheus.Registry {
	return registry
}
