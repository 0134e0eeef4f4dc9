// Package metrics exposes ozwald's Prometheus instrumentation. All
// collectors register on the default registry and are served through
// the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Transitions counts instance state transitions by target state.
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozwald_instance_transitions_total",
			Help: "Instance state transitions by target state.",
		},
		[]string{"state"},
	)

	// AdmissionRejections counts placements refused by the admission check.
	AdmissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ozwald_admission_rejections_total",
			Help: "Placements refused by the resource admission check.",
		},
		[]string{"host"},
	)

	// ActiveInstances tracks currently active instances per realm.
	ActiveInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ozwald_active_instances",
			Help: "Currently active instances per realm.",
		},
		[]string{"realm"},
	)

	// SweptArtifacts counts secret artifacts destroyed by the startup sweep.
	SweptArtifacts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ozwald_swept_artifacts_total",
			Help: "Secret artifacts destroyed by the startup sweep.",
		},
	)

	// FootprintMeasurements counts completed footprint measurement runs.
	FootprintMeasurements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ozwald_footprint_measurements_total",
			Help: "Completed footprint measurement runs.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Transitions,
		AdmissionRejections,
		ActiveInstances,
		SweptArtifacts,
		FootprintMeasurements,
	)
}
