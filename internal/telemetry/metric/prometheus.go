package metric

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scrapedelta"

// Run outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeLocked  = "locked"
)

// Export outcome label values.
const (
	ExportOK     = "ok"
	ExportFailed = "failed"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	Records         prometheus.Gauge
	AddedTotal      prometheus.Counter
	RemovedTotal    prometheus.Counter
	ExportsTotal    *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	EmptyFetchTotal prometheus.Counter
	LastSuccess     prometheus.Gauge
}

// NewRegistry creates a registry with every scrapedelta metric registered.
// Process and Go runtime collectors are included when withRuntime is set.
func NewRegistry(withRuntime bool) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by outcome.",
		}, []string{"outcome"}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the last persisted snapshot.",
		}),
		AddedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "added_total",
			Help:      "Records added across runs.",
		}),
		RemovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "removed_total",
			Help:      "Records removed across runs.",
		}),
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Artifact exports by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a run from fetch to last export.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		EmptyFetchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_fetch_total",
			Help:      "Runs that fetched nothing while the baseline had records.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	r.reg.MustRegister(
		r.RunsTotal,
		r.Records,
		r.AddedTotal,
		r.RemovedTotal,
		r.ExportsTotal,
		r.RunDuration,
		r.EmptyFetchTotal,
		r.LastSuccess,
	)
	if withRuntime {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Zero-initialize outcome series so they are present before the first run.
	for _, o := range []string{OutcomeSuccess, OutcomeFailed, OutcomeLocked} {
		r.RunsTotal.WithLabelValues(o)
	}
	for _, o := range []string{ExportOK, ExportFailed} {
		r.ExportsTotal.WithLabelValues(o)
	}
	return r
}

// Registerer exposes the underlying registry for other collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer exposes the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is written to a temp name and renamed, as node_exporter expects.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metric: write textfile: %w", err)
	}
	return nil
}
