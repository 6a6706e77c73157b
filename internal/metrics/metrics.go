package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg             *prometheus.Registry
	Refreshes       *prometheus.CounterVec
	RefreshSeconds  prometheus.Histogram
	PagesFetched    *prometheus.CounterVec
	RecordsSkipped  *prometheus.CounterVec
	SourceFailures  *prometheus.CounterVec
	SnapshotRecords prometheus.Gauge
	CompleteRecords prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caseplanner_refresh_total"}, []string{"status"})
	refreshSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "caseplanner_refresh_duration_seconds",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
	})
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caseplanner_market_pages_total"}, []string{"mode"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caseplanner_records_skipped_total"}, []string{"source", "reason"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caseplanner_source_failures_total"}, []string{"source"})
	snapshot := prometheus.NewGauge(prometheus.GaugeOpts{Name: "caseplanner_snapshot_records"})
	complete := prometheus.NewGauge(prometheus.GaugeOpts{Name: "caseplanner_complete_records"})

	r.MustRegister(refreshes, refreshSeconds, pages, skipped, failures, snapshot, complete)
	return &Registry{
		reg:             r,
		Refreshes:       refreshes,
		RefreshSeconds:  refreshSeconds,
		PagesFetched:    pages,
		RecordsSkipped:  skipped,
		SourceFailures:  failures,
		SnapshotRecords: snapshot,
		CompleteRecords: complete,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
