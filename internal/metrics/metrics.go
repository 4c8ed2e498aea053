// Package metrics records the outcome of one report run on a private
// Prometheus registry, written as a node exporter textfile when the run
// finishes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Run struct {
	registry *prometheus.Registry

	regions       prometheus.Gauge
	matched       prometheus.Gauge
	missing       prometheus.Gauge
	unmatched     prometheus.Gauge
	duplicates    prometheus.Gauge
	isolated      prometheus.Gauge
	components    prometheus.Gauge
	excluded      prometheus.Gauge
	maxExceedance prometheus.Gauge
	stageDuration *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
}

// NewRun creates the run's gauges, labelled with the disease and engine.
func NewRun(disease, engine string) *Run {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"disease": disease, "engine": engine}
	f := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Name: "diseasemap_" + name, Help: help, ConstLabels: labels})
	}
	return &Run{
		registry:      reg,
		regions:       gauge("regions", "Number of regions in the registry"),
		matched:       gauge("regions_matched", "Regions with a case data row"),
		missing:       gauge("regions_missing", "Regions without a case data row"),
		unmatched:     gauge("rows_unmatched", "Case data rows naming no known region"),
		duplicates:    gauge("rows_duplicate", "Case data rows for a region already seen"),
		isolated:      gauge("graph_isolated_regions", "Regions without neighbours"),
		components:    gauge("graph_components", "Connected components of the neighbour graph"),
		excluded:      gauge("expected_excluded_regions", "Regions left out of the reference rates"),
		maxExceedance: gauge("exceedance_max", "Largest exceedance probability of any region"),
		stageDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "diseasemap_stage_duration_seconds",
			Help:        "Wall time of each pipeline stage",
			ConstLabels: labels,
		}, []string{"stage"}),
		lastSuccess: gauge("last_success_timestamp_seconds", "Time the last successful run finished"),
	}
}

func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Run) Join(regions, matched, missing, unmatched, duplicates int) {
	r.regions.Set(float64(regions))
	r.matched.Set(float64(matched))
	r.missing.Set(float64(missing))
	r.unmatched.Set(float64(unmatched))
	r.duplicates.Set(float64(duplicates))
}

func (r *Run) Graph(isolated, components int) {
	r.isolated.Set(float64(isolated))
	r.components.Set(float64(components))
}

func (r *Run) Excluded(n int) {
	r.excluded.Set(float64(n))
}

func (r *Run) MaxExceedance(p float64) {
	r.maxExceedance.Set(p)
}

// Stage starts timing a stage; call the returned function when it ends.
func (r *Run) Stage(name string) func() {
	start := time.Now()
	return func() {
		r.stageDuration.WithLabelValues(name).Set(time.Since(start).Seconds())
	}
}

func (r *Run) Succeeded(at time.Time) {
	r.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the gauges atomically to path, for the node exporter
// textfile collector.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
