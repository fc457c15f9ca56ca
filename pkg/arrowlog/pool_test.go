package arrowlog

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/metrics"
	"github.com/ajitpratap0/arrowlog/pkg/testutil"
)

func TestWriterKey(t *testing.T) {
	assert.Equal(t, "7-2-NONE", WriterKey(7, 2, compression.NoCompression))
	zstd, err := compression.NewArrowCompressionInfo(compression.ArrowZstd, compression.NoCompressionLevel)
	require.NoError(t, err)
	assert.Equal(t, "7-2-ZSTD(3)", WriterKey(7, 2, zstd))
}

func TestPoolReusesWritersPerKey(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	p := NewWriterPool(mem, WithPoolLogger(testutil.TestLogger(t)))
	defer p.Close()

	w, err := p.GetOrCreateWriter(1, 1, 4096, idNameRowType, compression.NoCompression)
	require.NoError(t, err)
	assert.Equal(t, "1-1-NONE", w.Key())
	require.NoError(t, w.WriteRow(idNameRow(1)))

	epoch := w.Epoch()
	w.Recycle(epoch)
	assert.Equal(t, epoch+1, w.Epoch())
	assert.Equal(t, StateInPool, w.State())

	// a late recycle from the previous owner is ignored
	w.Recycle(epoch)
	assert.Equal(t, 1, p.Stats().Idle)

	again, err := p.GetOrCreateWriter(1, 1, 8192, idNameRowType, compression.NoCompression)
	require.NoError(t, err)
	assert.Same(t, w, again)
	assert.Equal(t, StateAcquired, again.State())
	assert.Equal(t, 0, again.RecordsCount())
	assert.Equal(t, again.writeLimit(8192), again.WriteLimitInBytes())
	assert.Equal(t, 7864, again.WriteLimitInBytes())

	other, err := p.GetOrCreateWriter(1, 2, 4096, idNameRowType, compression.NoCompression)
	require.NoError(t, err)
	assert.NotSame(t, w, other)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Created)
	assert.Equal(t, int64(1), stats.Reused)
	assert.Equal(t, int64(1), stats.Recycled)
	assert.Equal(t, 0, stats.Idle)

	again.Recycle(again.Epoch())
	other.Recycle(other.Epoch())
}

func TestPoolDiscardsBeyondMaxIdle(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	reg := prometheus.NewRegistry()
	p := NewWriterPool(mem, WithMaxIdlePerKey(1), WithPoolMetrics(metrics.NewWriterMetrics(reg)))
	defer p.Close()

	a, err := p.GetOrCreateWriter(1, 1, 4096, idNameRowType, compression.NoCompression)
	require.NoError(t, err)
	b, err := p.GetOrCreateWriter(1, 1, 4096, idNameRowType, compression.NoCompression)
	require.NoError(t, err)

	a.Recycle(a.Epoch())
	b.Recycle(b.Epoch())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Recycled)
	assert.Equal(t, int64(1), stats.Discarded)
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, StateInPool, b.State())

	n, err := promtest.GatherAndCount(reg, "arrowlog_pool_writers_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "created, recycled and discarded series")
}

func TestPoolCloseReleasesMemory(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	p := NewWriterPool(mem)

	held, err := p.GetOrCreateWriter(3, 1, 1<<16, testutil.AllKindsRowType(), compression.NoCompression)
	require.NoError(t, err)
	parked, err := p.GetOrCreateWriter(4, 1, 1<<16, idNameRowType, compression.NoCompression)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, held.WriteRow(testutil.AllKindsRow(i)))
		require.NoError(t, parked.WriteRow(idNameRow(i)))
	}
	parked.Recycle(parked.Epoch())
	require.Positive(t, mem.CurrentAlloc())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = p.GetOrCreateWriter(3, 1, 1<<16, idNameRowType, compression.NoCompression)
	assert.True(t, errors.IsType(err, errors.ErrorTypeClosed))

	// writers still out are released when they come back
	held.Recycle(held.Epoch())
	assert.Equal(t, int64(1), p.Stats().Discarded)
	assert.Equal(t, 0, mem.CurrentAlloc())
}

func TestPoolConcurrentUse(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	p := NewWriterPool(mem, WithMaxIdlePerKey(2))
	defer p.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				w, err := p.GetOrCreateWriter(int64(g%2), 1, 4096, idNameRowType, compression.NoCompression)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, StateAcquired, w.State())
				assert.NoError(t, w.WriteRow(idNameRow(i)))
				w.Recycle(w.Epoch())
			}
		}(g)
	}
	wg.Wait()

	stats := p.Stats()
	assert.Equal(t, int64(400), stats.Created+stats.Reused)
	assert.LessOrEqual(t, stats.Idle, 4)
}
