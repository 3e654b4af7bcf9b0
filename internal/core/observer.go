package core

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder receives ingestion and audit outcomes.
type MetricsRecorder interface {
	// ObserveBatch is called once per batch that reached the store. result is
	// nil when err is non-nil.
	ObserveBatch(result *IngestResult, err error)
	// ObserveRejectedBatch is called when a batch never got an ingest slot.
	ObserveRejectedBatch(err error)
	// ObserveRepair is called after a committed duplicate repair.
	ObserveRepair(result *RepairResult)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(*IngestResult, error) {}
func (nopRecorder) ObserveRejectedBatch(error)        {}
func (nopRecorder) ObserveRepair(*RepairResult)       {}

// PrometheusRecorder exports ingestion metrics under the "picking" namespace.
type PrometheusRecorder struct {
	batches    *prometheus.CounterVec
	assemblies *prometheus.CounterVec
	products   *prometheus.CounterVec
	duration   prometheus.Histogram
	repaired   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the ingestion metrics with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picking",
			Name:      "batches_total",
			Help:      "Ingestion batches by result (committed, aborted, busy, cancelled).",
		}, []string{"result"}),
		assemblies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picking",
			Name:      "assemblies_total",
			Help:      "Assemblies processed in committed batches by outcome.",
		}, []string{"outcome"}),
		products: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picking",
			Name:      "products_total",
			Help:      "Line items processed in committed batches by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "picking",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of committed batches.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		repaired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picking",
			Name:      "duplicates_removed_total",
			Help:      "Rows removed by duplicate repair by kind.",
		}, []string{"kind"}),
	}
}

func (p *PrometheusRecorder) ObserveBatch(result *IngestResult, err error) {
	if err != nil {
		p.batches.WithLabelValues("aborted").Inc()
		return
	}
	p.batches.WithLabelValues("committed").Inc()
	p.duration.Observe(result.Duration.Seconds())

	p.assemblies.WithLabelValues("created").Add(float64(result.Assemblies.Created))
	p.assemblies.WithLabelValues("updated").Add(float64(result.Assemblies.Updated))
	p.assemblies.WithLabelValues("skipped").Add(float64(result.Assemblies.Skipped))
	p.products.WithLabelValues("created").Add(float64(result.Products.Created))
	p.products.WithLabelValues("updated").Add(float64(result.Products.Updated))
	p.products.WithLabelValues("skipped").Add(float64(result.Products.Skipped))
}

func (p *PrometheusRecorder) ObserveRejectedBatch(err error) {
	if errors.Is(err, ErrTooManyIngests) {
		p.batches.WithLabelValues("busy").Inc()
		return
	}
	p.batches.WithLabelValues("cancelled").Inc()
}

func (p *PrometheusRecorder) ObserveRepair(result *RepairResult) {
	p.repaired.WithLabelValues("assembly").Add(float64(result.AssembliesDeleted))
	p.repaired.WithLabelValues("line_item").Add(float64(result.LineItemsDeleted))
}
