package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics tracks health of the keyed persistence layer.
type StoreMetrics struct {
	operations  prometheus.CounterVec
	opErrors    prometheus.CounterVec
	scanResults prometheus.Histogram
	batchSize   prometheus.Histogram
}

var (
	defaultStoreMetrics     *StoreMetrics
	defaultStoreMetricsOnce sync.Once
)

// NewStoreMetrics builds a StoreMetrics recorder using the default registry.
func NewStoreMetrics() *StoreMetrics {
	defaultStoreMetricsOnce.Do(func() {
		defaultStoreMetrics = newStoreMetrics(prometheus.DefaultRegisterer)
	})
	return defaultStoreMetrics
}

// NewStoreMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewStoreMetricsWithRegisterer(reg prometheus.Registerer) *StoreMetrics {
	return newStoreMetrics(reg)
}

func newStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &StoreMetrics{
		operations: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optimaizer",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Keyed store operations by kind",
		}, []string{"op"}),
		opErrors: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optimaizer",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Keyed store operations that returned an error, by kind",
		}, []string{"op"}),
		scanResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "optimaizer",
			Subsystem: "store",
			Name:      "scan_results",
			Help:      "Entries returned per prefix scan",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "optimaizer",
			Subsystem: "store",
			Name:      "batch_size",
			Help:      "Mutations applied per atomic batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

// RecordOperation increments the counter for one store operation.
func (m *StoreMetrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op).Inc()
	if err != nil {
		m.opErrors.WithLabelValues(op).Inc()
	}
}

// RecordScan records the number of entries a prefix scan returned.
func (m *StoreMetrics) RecordScan(entries int, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues("scan").Inc()
	if err != nil {
		m.opErrors.WithLabelValues("scan").Inc()
		return
	}
	m.scanResults.Observe(float64(entries))
}

// RecordBatch records the size of an applied batch.
func (m *StoreMetrics) RecordBatch(mutations int, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues("batch").Inc()
	if err != nil {
		m.opErrors.WithLabelValues("batch").Inc()
		return
	}
	m.batchSize.Observe(float64(mutations))
}
