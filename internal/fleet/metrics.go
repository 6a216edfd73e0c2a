package fleet

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "fleet",
			Name:      "transitions_total",
			Help:      "Total service lifecycle transitions by target status",
		},
		[]string{"service", "to"},
	)

	admissionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "fleet",
			Name:      "admission_rejections_total",
			Help:      "Starts rejected by the GPU concurrency gate",
		},
		[]string{"service"},
	)

	healthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "fleet",
			Name:      "health_check_failures_total",
			Help:      "Failed health probes",
		},
		[]string{"service"},
	)

	idleStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetd",
			Subsystem: "fleet",
			Name:      "idle_stops_total",
			Help:      "Services stopped by the idle-timeout sweep",
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(transitionsTotal, admissionRejectionsTotal, healthFailuresTotal, idleStopsTotal)
}
