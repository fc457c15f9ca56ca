// Package metrics provides Prometheus collectors for arrowlog writers,
// writer pools and the ingest pipeline.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewWriterMetrics(reg)
//
//	pool := arrowlog.NewWriterPool(mem, arrowlog.WithPoolMetrics(m))
//
// All recording methods are safe on a nil *WriterMetrics, so components
// can be built without metrics and skip the nil checks.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arrowlog"

// Pool event label values.
const (
	PoolEventCreated   = "created"
	PoolEventReused    = "reused"
	PoolEventRecycled  = "recycled"
	PoolEventDiscarded = "discarded"
)

// WriterMetrics groups the collectors of the batch writing path.
type WriterMetrics struct {
	rowsWritten       *prometheus.CounterVec
	batchesSerialized *prometheus.CounterVec
	bytesSerialized   *prometheus.CounterVec
	sizeMeasurements  *prometheus.CounterVec
	batchSize         *prometheus.HistogramVec
	serializeLatency  *prometheus.HistogramVec
	staleRecycles     prometheus.Counter
	poolEvents        *prometheus.CounterVec
	idleWriters       prometheus.Gauge
	ingestThroughput  prometheus.Gauge
}

// NewWriterMetrics creates and registers the collectors on reg. A nil reg
// creates unregistered collectors, which is useful in tests.
func NewWriterMetrics(reg prometheus.Registerer) *WriterMetrics {
	factory := promauto.With(reg)
	return &WriterMetrics{
		rowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows appended to arrow batches",
		}, []string{"codec"}),
		batchesSerialized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_serialized_total",
			Help:      "Arrow record batches serialized to an output view",
		}, []string{"codec"}),
		bytesSerialized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_serialized_total",
			Help:      "Bytes of metadata and body written by serialized batches",
		}, []string{"codec"}),
		sizeMeasurements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "size_measurements_total",
			Help:      "Exact batch size computations performed by fullness checks",
		}, []string{"codec"}),
		batchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_bytes",
			Help:      "Size of serialized arrow batches",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8), // 1KB .. 16MB
		}, []string{"codec"}),
		serializeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "serialize_latency_seconds",
			Help:      "Time spent serializing a batch",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 8), // 10us .. 160ms
		}, []string{"codec"}),
		staleRecycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_recycles_total",
			Help:      "Recycle calls ignored because they did not match the current use cycle",
		}),
		poolEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "writers_total",
			Help:      "Writer pool events by kind",
		}, []string{"event"}),
		idleWriters: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_writers",
			Help:      "Writers currently parked in the pool",
		}),
		ingestThroughput: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_per_second",
			Help:      "Ingest throughput over the last reporting window",
		}),
	}
}

// CodecMetrics are the per-codec collectors a single writer records to.
type CodecMetrics struct {
	rows             prometheus.Counter
	batches          prometheus.Counter
	bytes            prometheus.Counter
	sizeMeasurements prometheus.Counter
	batchSize        prometheus.Observer
	latency          prometheus.Observer
	stale            prometheus.Counter
}

// ForCodec binds the label values once so the hot path avoids label
// lookups. Returns nil when m is nil.
func (m *WriterMetrics) ForCodec(codec string) *CodecMetrics {
	if m == nil {
		return nil
	}
	return &CodecMetrics{
		rows:             m.rowsWritten.WithLabelValues(codec),
		batches:          m.batchesSerialized.WithLabelValues(codec),
		bytes:            m.bytesSerialized.WithLabelValues(codec),
		sizeMeasurements: m.sizeMeasurements.WithLabelValues(codec),
		batchSize:        m.batchSize.WithLabelValues(codec),
		latency:          m.serializeLatency.WithLabelValues(codec),
		stale:            m.staleRecycles,
	}
}

// RowWritten counts one appended row.
func (c *CodecMetrics) RowWritten() {
	if c != nil {
		c.rows.Inc()
	}
}

// SizeMeasured counts one exact size computation.
func (c *CodecMetrics) SizeMeasured() {
	if c != nil {
		c.sizeMeasurements.Inc()
	}
}

// BatchSerialized records a serialized batch of n bytes.
func (c *CodecMetrics) BatchSerialized(n int, took time.Duration) {
	if c == nil {
		return
	}
	c.batches.Inc()
	c.bytes.Add(float64(n))
	c.batchSize.Observe(float64(n))
	c.latency.Observe(took.Seconds())
}

// StaleRecycle counts an ignored recycle.
func (c *CodecMetrics) StaleRecycle() {
	if c != nil {
		c.stale.Inc()
	}
}

// PoolEvent counts a writer pool event (see PoolEvent* constants).
func (m *WriterMetrics) PoolEvent(event string) {
	if m != nil {
		m.poolEvents.WithLabelValues(event).Inc()
	}
}

// SetIdleWriters updates the idle writer gauge.
func (m *WriterMetrics) SetIdleWriters(n int) {
	if m != nil {
		m.idleWriters.Set(float64(n))
	}
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over reporting windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	total     int64
	lastReset time.Time
	gauge     prometheus.Gauge
}

// NewThroughputTracker creates a tracker reporting to the ingest
// throughput gauge of m. m may be nil.
func NewThroughputTracker(m *WriterMetrics) *ThroughputTracker {
	t := &ThroughputTracker{lastReset: time.Now()}
	if m != nil {
		t.gauge = m.ingestThroughput
	}
	return t
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
	t.total += n
}

// Total returns all rows counted since creation.
func (t *ThroughputTracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// GetAndReset returns the throughput of the current window, publishes it
// and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	if t.gauge != nil {
		t.gauge.Set(throughput)
	}
	return throughput
}
