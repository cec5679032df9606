package dockit

import (
	"github.com/autom8ter/dockit/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	operations *prometheus.CounterVec
	examined   *prometheus.HistogramVec
	indexes    *prometheus.GaugeVec
	documents  *prometheus.GaugeVec
}

// newMetrics creates the database collectors. A nil registerer leaves them unregistered.
// Databases opened against the same registerer share its collectors.
func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dockit_operations_total",
				Help: "Total number of collection operations",
			},
			[]string{"collection", "operation", "status"},
		),
		examined: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dockit_documents_examined",
				Help:    "Documents examined by the matcher per query",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"collection", "stage"},
		),
		indexes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dockit_indexes",
				Help: "Number of indexes per collection",
			},
			[]string{"collection"},
		),
		documents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dockit_documents",
				Help: "Number of documents per collection",
			},
			[]string{"collection"},
		),
	}
	if registerer == nil {
		return m, nil
	}
	var err error
	if m.operations, err = register(registerer, m.operations); err != nil {
		return nil, err
	}
	if m.examined, err = register(registerer, m.examined); err != nil {
		return nil, err
	}
	if m.indexes, err = register(registerer, m.indexes); err != nil {
		return nil, err
	}
	if m.documents, err = register(registerer, m.documents); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers the collector, returning the collector already registered under the same description if any
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	err := registerer.Register(collector)
	if err == nil {
		return collector, nil
	}
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return collector, errors.Wrap(err, errors.Internal, "failed to register metrics")
}

func (m *metrics) observe(collection, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(collection, operation, status).Inc()
}

func (m *metrics) observePlan(collection string, plan *Plan) {
	m.examined.WithLabelValues(collection, string(plan.Stage)).Observe(float64(plan.DocumentsExamined))
}
