// Package metrics holds the Prometheus instrumentation for chunk sealing,
// the decrypt cache, storage backends and close passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "selfenc"

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	chunkOps        *prometheus.CounterVec
	chunkBytes      *prometheus.CounterVec
	chunkDuration   *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	storageOps      *prometheus.CounterVec
	storageErrors   *prometheus.CounterVec
	storageDuration *prometheus.HistogramVec
	closeChunks     *prometheus.CounterVec
	closes          *prometheus.CounterVec
	readBytes       prometheus.Counter
	writeBytes      prometheus.Counter
}

// New registers the metrics with reg. Use prometheus.NewRegistry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		chunkOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_operations_total",
				Help:      "Total number of chunk seal and open operations",
			},
			[]string{"operation"},
		),
		chunkBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunk_plaintext_bytes_total",
				Help:      "Plaintext bytes sealed or opened",
			},
			[]string{"operation"},
		),
		chunkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunk_operation_duration_seconds",
				Help:      "Chunk seal and open duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Decrypted chunk cache lookups",
			},
			[]string{"result"},
		),
		storageOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of storage backend operations",
			},
			[]string{"backend", "operation"},
		),
		storageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Storage backend operation failures",
			},
			[]string{"backend", "operation", "kind"},
		),
		storageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_operation_duration_seconds",
				Help:      "Storage backend operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		closeChunks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "close_chunks_total",
				Help:      "Chunks handled by close, by outcome",
			},
			[]string{"outcome"},
		),
		closes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "closes_total",
				Help:      "Close calls by result",
			},
			[]string{"result"},
		),
		readBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "read_bytes_total",
				Help:      "Bytes returned by Read",
			},
		),
		writeBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "write_bytes_total",
				Help:      "Bytes accepted by Write",
			},
		),
	}
}

// RecordChunk records one chunk seal or open of the given plaintext size.
func (m *Metrics) RecordChunk(operation string, duration time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.chunkOps.WithLabelValues(operation).Inc()
	m.chunkBytes.WithLabelValues(operation).Add(float64(bytes))
	m.chunkDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheHit records a decrypted chunk served from the cache.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a decrypted chunk that had to be fetched.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// RecordStorageOp records a storage backend operation.
func (m *Metrics) RecordStorageOp(backend, operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storageOps.WithLabelValues(backend, operation).Inc()
	m.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordStorageError records a failed storage backend operation.
func (m *Metrics) RecordStorageError(backend, operation, kind string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(backend, operation, kind).Inc()
}

// RecordClose records the outcome of a Close call.
func (m *Metrics) RecordClose(sealed, reused int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.closes.WithLabelValues("error").Inc()
		return
	}
	m.closes.WithLabelValues("ok").Inc()
	m.closeChunks.WithLabelValues("sealed").Add(float64(sealed))
	m.closeChunks.WithLabelValues("reused").Add(float64(reused))
}

// RecordRead records bytes returned by a read.
func (m *Metrics) RecordRead(n int) {
	if m == nil {
		return
	}
	m.readBytes.Add(float64(n))
}

// RecordWrite records bytes accepted by a write.
func (m *Metrics) RecordWrite(n int) {
	if m == nil {
		return
	}
	m.writeBytes.Add(float64(n))
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
