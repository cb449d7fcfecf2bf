package query

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Strategy labels
const (
	StrategySkip   = "skip"
	StrategyLinear = "linear"
)

// Metrics holds Prometheus metrics for the query engine
type Metrics struct {
	// Counters (cumulative values)
	QueriesTotal        *prometheus.CounterVec
	StorageReadsTotal   *prometheus.CounterVec
	FalsePositivesTotal *prometheus.CounterVec
	JumpsTotal          prometheus.Counter

	// Histograms (distributions)
	BlocksExamined *prometheus.HistogramVec
	QueryDuration  *prometheus.HistogramVec
}

// NewMetrics creates query metrics and registers them on reg. A nil reg
// registers on the default registry.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "skipindex"
	}
	if subsystem == "" {
		subsystem = "query"
	}
	factory := promauto.With(reg)

	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queries_total",
			Help:      "Total number of queries by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		StorageReadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "storage_reads_total",
			Help:      "Total number of event sets read to confirm filter hits",
		}, []string{"strategy"}),
		FalsePositivesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "false_positives_total",
			Help:      "Total number of block filter hits rejected by storage",
		}, []string{"strategy"}),
		JumpsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jumps_total",
			Help:      "Total number of multi-block windows skipped",
		}),

		BlocksExamined: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_examined",
			Help:      "Blocks examined per query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10), // 1 to 262144
		}, []string{"strategy"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "query_duration_seconds",
			Help:      "Query duration in seconds",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1, 10}, // 10μs to 10s
		}, []string{"strategy"}),
	}
}

// observe records one finished query
func (m *Metrics) observe(strategy string, res Result, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(strategy, outcome(res, err)).Inc()
	m.BlocksExamined.WithLabelValues(strategy).Observe(float64(res.Count))
	m.StorageReadsTotal.WithLabelValues(strategy).Add(float64(res.StorageReads))
	m.FalsePositivesTotal.WithLabelValues(strategy).Add(float64(res.FalsePositives))
	m.JumpsTotal.Add(float64(res.Jumps))
	m.QueryDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func outcome(res Result, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrInvalidRange):
		return "invalid"
	case err != nil:
		return "error"
	case res.Found():
		return "found"
	default:
		return "not_found"
	}
}
