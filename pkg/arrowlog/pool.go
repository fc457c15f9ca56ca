package arrowlog

import (
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
	"github.com/ajitpratap0/arrowlog/pkg/metrics"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// DefaultMaxIdlePerKey bounds the free writers kept per key.
const DefaultMaxIdlePerKey = 4

// PoolStats is a snapshot of writer pool activity.
type PoolStats struct {
	Created   int64 `json:"created"`
	Reused    int64 `json:"reused"`
	Recycled  int64 `json:"recycled"`
	Discarded int64 `json:"discarded"`
	Idle      int   `json:"idle"`
}

// WriterPool hands out writers keyed by table, schema and codec, and takes
// them back through RecycleWriter. A writer is handed to one caller at a
// time. Safe for concurrent use.
type WriterPool struct {
	mu     sync.Mutex
	mem    memory.Allocator
	free   map[string][]*Writer
	closed bool

	maxIdlePerKey int
	writerOpts    []WriterOption
	stats         PoolStats

	logger  *zap.Logger
	metrics *metrics.WriterMetrics
}

// PoolOption configures a WriterPool.
type PoolOption func(*WriterPool)

// WithMaxIdlePerKey bounds the free writers kept per key. Writers
// recycled beyond the bound are released.
func WithMaxIdlePerKey(n int) PoolOption {
	return func(p *WriterPool) { p.maxIdlePerKey = n }
}

// WithPoolLogger sets the logger of the pool and its writers.
func WithPoolLogger(l *zap.Logger) PoolOption {
	return func(p *WriterPool) { p.logger = l }
}

// WithPoolMetrics records pool and writer activity to m.
func WithPoolMetrics(m *metrics.WriterMetrics) PoolOption {
	return func(p *WriterPool) { p.metrics = m }
}

// WithWriterOptions applies opts to every writer the pool creates.
func WithWriterOptions(opts ...WriterOption) PoolOption {
	return func(p *WriterPool) { p.writerOpts = append(p.writerOpts, opts...) }
}

// NewWriterPool creates a pool allocating writer memory from mem.
func NewWriterPool(mem memory.Allocator, opts ...PoolOption) *WriterPool {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	p := &WriterPool{
		mem:           mem,
		free:          make(map[string][]*Writer),
		maxIdlePerKey: DefaultMaxIdlePerKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrGlobal(p.logger)
	return p
}

// WriterKey is the pool key of writers for a table, schema and codec.
func WriterKey(tableID int64, schemaID int, info compression.ArrowCompressionInfo) string {
	return fmt.Sprintf("%d-%d-%s", tableID, schemaID, info)
}

// GetOrCreateWriter returns a free writer for the key reset to
// bufferSizeInBytes, or a new one. The returned writer is in
// StateAcquired.
func (p *WriterPool) GetOrCreateWriter(
	tableID int64,
	schemaID int,
	bufferSizeInBytes int,
	rowType types.RowType,
	info compression.ArrowCompressionInfo,
) (*Writer, error) {
	key := WriterKey(tableID, schemaID, info)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New(errors.ErrorTypeClosed, "writer pool is closed")
	}
	var w *Writer
	if free := p.free[key]; len(free) > 0 {
		w = free[len(free)-1]
		free[len(free)-1] = nil
		p.free[key] = free[:len(free)-1]
		p.stats.Reused++
		p.stats.Idle--
	}
	idle := p.stats.Idle
	p.mu.Unlock()

	if w != nil {
		w.Reset(bufferSizeInBytes)
		w.setState(StateAcquired)
		p.metrics.PoolEvent(metrics.PoolEventReused)
		p.metrics.SetIdleWriters(idle)
		p.logger.Debug("reusing pooled writer",
			zap.String("writer_key", key), zap.Int64("epoch", w.Epoch()))
		return w, nil
	}

	opts := append([]WriterOption{WithLogger(p.logger), WithMetrics(p.metrics)}, p.writerOpts...)
	w, err := NewWriter(key, bufferSizeInBytes, rowType, p.mem, p, info, opts...)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.stats.Created++
	p.mu.Unlock()
	p.metrics.PoolEvent(metrics.PoolEventCreated)
	p.logger.Debug("created writer", zap.String("writer_key", key))
	return w, nil
}

// RecycleWriter implements WriterProvider. It starts a new epoch for w and
// keeps it for reuse, or releases it when the pool is closed or the key
// already holds the maximum number of free writers.
func (p *WriterPool) RecycleWriter(w *Writer) {
	w.IncreaseEpoch()

	p.mu.Lock()
	if p.closed || len(p.free[w.key]) >= p.maxIdlePerKey {
		p.stats.Discarded++
		p.mu.Unlock()

		w.release()
		w.setState(StateInPool)
		p.metrics.PoolEvent(metrics.PoolEventDiscarded)
		p.logger.Debug("discarded writer", zap.String("writer_key", w.key))
		return
	}
	w.setState(StateInPool)
	p.free[w.key] = append(p.free[w.key], w)
	p.stats.Recycled++
	p.stats.Idle++
	idle := p.stats.Idle
	p.mu.Unlock()

	p.metrics.PoolEvent(metrics.PoolEventRecycled)
	p.metrics.SetIdleWriters(idle)
}

// Close releases every free writer and rejects further gets. Writers
// still handed out are released when they are recycled.
func (p *WriterPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	free := p.free
	p.free = make(map[string][]*Writer)
	p.stats.Idle = 0
	p.mu.Unlock()

	released := 0
	for _, ws := range free {
		for _, w := range ws {
			w.release()
			released++
		}
	}
	p.metrics.SetIdleWriters(0)
	p.logger.Debug("closed writer pool", zap.Int("released", released))
	return nil
}

// Stats returns a snapshot of the pool counters.
func (p *WriterPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
