package metrics

import (
	"strconv"
	"sync"

	"github.com/arloliu/puzzlepool/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so that building
// a collector never panics on a registry that is not used.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	allocations       *prometheus.CounterVec
	allocationLatency *prometheus.HistogramVec
	uniquenessRetries prometheus.Histogram
	persistRetries    prometheus.Histogram
	freeSegments      prometheus.Gauge

	lockWait     *prometheus.HistogramVec
	statusChange *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec

	sampleShortfall prometheus.Counter
	sampleSize      prometheus.Histogram
	verifications   *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "puzzlepool" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "puzzlepool"
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.allocations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "allocations_total",
			Help:      "Total Allocate calls by provenance and outcome.",
		}, []string{"provenance", "outcome"})

		p.allocationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "allocation_duration_seconds",
			Help:      "Allocate latency in seconds, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"outcome"})

		p.uniquenessRetries = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "uniqueness_retries",
			Help:      "Perturbations needed before a candidate interval was unique.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		})

		p.persistRetries = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "persist_retries",
			Help:      "Create attempts that collided on the uniqueness constraint per allocation.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		})

		p.freeSegments = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "free_segments",
			Help:      "Number of free segments seen by the last allocation.",
		})

		p.lockWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the assignment lock.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.15, 0.25, 0.5, 1, 2},
		}, []string{"acquired"})

		p.statusChange = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "blocks",
			Name:      "status_changes_total",
			Help:      "Assignment status transitions by target status.",
		}, []string{"status"})

		p.storeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Assignment store operation latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"})

		p.sampleSize = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "checkwork",
			Name:      "sample_size",
			Help:      "Unique scalars produced per sampling run.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		})

		p.sampleShortfall = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "checkwork",
			Name:      "sample_shortfall_total",
			Help:      "Sampling runs that produced fewer scalars than requested.",
		})

		p.verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "checkwork",
			Name:      "verifications_total",
			Help:      "Submission verification outcomes (accepted, mismatch, rejected).",
		}, []string{"outcome"})

		p.reg.MustRegister(
			p.allocations,
			p.allocationLatency,
			p.uniquenessRetries,
			p.persistRetries,
			p.freeSegments,
			p.lockWait,
			p.statusChange,
			p.storeLatency,
			p.sampleSize,
			p.sampleShortfall,
			p.verifications,
		)
	})
}

// AllocatorMetrics implementation

// RecordAllocation counts the allocation and observes its latency.
func (p *PrometheusCollector) RecordAllocation(provenance types.Provenance, outcome string, duration float64) {
	p.ensureRegistered()
	p.allocations.WithLabelValues(string(provenance), outcome).Inc()
	p.allocationLatency.WithLabelValues(outcome).Observe(duration)
}

// RecordUniquenessRetries observes the perturbation count of one allocation.
func (p *PrometheusCollector) RecordUniquenessRetries(attempts int) {
	p.ensureRegistered()
	p.uniquenessRetries.Observe(float64(attempts))
}

// RecordPersistRetries observes the persist collision count of one allocation.
func (p *PrometheusCollector) RecordPersistRetries(attempts int) {
	p.ensureRegistered()
	p.persistRetries.Observe(float64(attempts))
}

// RecordFreeSpace sets the free segment gauge.
func (p *PrometheusCollector) RecordFreeSpace(segments int) {
	p.ensureRegistered()
	p.freeSegments.Set(float64(segments))
}

// LockMetrics implementation

// RecordLockWait observes lock wait time labelled by outcome.
func (p *PrometheusCollector) RecordLockWait(duration float64, acquired bool) {
	p.ensureRegistered()
	p.lockWait.WithLabelValues(strconv.FormatBool(acquired)).Observe(duration)
}

// LifecycleMetrics implementation

// RecordStatusChange adds count transitions into status to.
func (p *PrometheusCollector) RecordStatusChange(to types.Status, count int) {
	if count <= 0 {
		return
	}
	p.ensureRegistered()
	p.statusChange.WithLabelValues(to.String()).Add(float64(count))
}

// RecordStoreOperationDuration observes store latency for op.
func (p *PrometheusCollector) RecordStoreOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.storeLatency.WithLabelValues(operation).Observe(duration)
}

// CheckworkMetrics implementation

// RecordSampleSize observes the produced sample size and counts shortfalls.
func (p *PrometheusCollector) RecordSampleSize(requested, produced int) {
	p.ensureRegistered()
	p.sampleSize.Observe(float64(produced))
	if produced < requested {
		p.sampleShortfall.Inc()
	}
}

// RecordVerification counts a submission verification outcome.
func (p *PrometheusCollector) RecordVerification(outcome string) {
	p.ensureRegistered()
	p.verifications.WithLabelValues(outcome).Inc()
}
