package arrowlog

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/metrics"
	"github.com/ajitpratap0/arrowlog/pkg/testutil"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

var idNameRowType = types.MustRowType(
	types.NewField("id", types.Int()),
	types.NewField("name", types.String()),
)

func idNameRow(i int) types.GenericRow {
	return types.GenericRow{int32(i), fmt.Sprintf("name-%d", i)}
}

// countingProvider records the writers handed back to it.
type countingProvider struct {
	calls    int
	recycled []*Writer
}

func (p *countingProvider) RecycleWriter(w *Writer) {
	p.calls++
	p.recycled = append(p.recycled, w)
}

func newTestWriter(t *testing.T, bufferSize int, rowType types.RowType, mem memory.Allocator, opts ...WriterOption) (*Writer, *countingProvider) {
	t.Helper()
	p := &countingProvider{}
	opts = append([]WriterOption{WithLogger(testutil.TestLogger(t))}, opts...)
	w, err := NewWriter("test", bufferSize, rowType, mem, p, compression.NoCompression, opts...)
	require.NoError(t, err)
	return w, p
}

// recoverError runs fn and returns the *errors.Error it panicked with.
func recoverError(t *testing.T, fn func()) (perr *errors.Error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		e, ok := r.(*errors.Error)
		require.True(t, ok, "panic value %T is not *errors.Error", r)
		perr = e
	}()
	fn()
	return nil
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter("k", 1024, idNameRowType, nil, nil, compression.NoCompression)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	p := &countingProvider{}
	_, err = NewWriter("k", 0, idNameRowType, nil, p, compression.NoCompression)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = NewWriter("k", 1024, idNameRowType, nil, p, compression.NoCompression, WithUsageRatio(1))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = NewWriter("k", 1024, idNameRowType, nil, p, compression.ArrowCompressionInfo{Type: compression.ArrowZstd, Level: 99})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	w, err := NewWriter("k", 1000, idNameRowType, nil, p, compression.NoCompression)
	require.NoError(t, err)
	assert.Equal(t, 960, w.WriteLimitInBytes())
	assert.Equal(t, StateAcquired, w.State())
	assert.Equal(t, int64(0), w.Epoch())
	assert.Equal(t, 0, w.RecordsCount())
	assert.Positive(t, w.MetadataLength())
	assert.Zero(t, w.MetadataLength()%8)
}

func TestWriteRowCountsUntilFull(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	w, _ := newTestWriter(t, 16*1024, idNameRowType, mem)
	defer w.release()

	for i := 0; ; i++ {
		require.Less(t, i, 100000, "writer never reported full")
		if w.IsFull() {
			break
		}
		before := w.RecordsCount()
		require.NoError(t, w.WriteRow(idNameRow(i)))
		require.Equal(t, before+1, w.RecordsCount())
	}

	size, err := w.SizeInBytes()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, size, w.WriteLimitInBytes())
}

func TestWriteRowWhenFullPanics(t *testing.T) {
	w, _ := newTestWriter(t, 512, idNameRowType, nil)
	i := 0
	for !w.IsFull() {
		require.NoError(t, w.WriteRow(idNameRow(i)))
		i++
	}
	count := w.RecordsCount()

	perr := recoverError(t, func() { _ = w.WriteRow(idNameRow(i)) })
	assert.Equal(t, errors.ErrorTypeInvariant, perr.Type)
	assert.Equal(t, count, w.RecordsCount())

	// fullness wins over a malformed row
	perr = recoverError(t, func() { _ = w.WriteRow(types.GenericRow{int32(i)}) })
	assert.Equal(t, errors.ErrorTypeInvariant, perr.Type)
	assert.Equal(t, count, w.RecordsCount())
}

func TestWriteRowFieldCountMismatch(t *testing.T) {
	w, _ := newTestWriter(t, 1024, idNameRowType, nil)
	err := w.WriteRow(types.GenericRow{int32(1)})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, 0, w.RecordsCount())
}

func TestWriteOutsideAcquiredPanics(t *testing.T) {
	w, _ := newTestWriter(t, 1024, idNameRowType, nil)
	w.Recycle(w.Epoch())
	require.Equal(t, StateInPool, w.State())

	perr := recoverError(t, func() { _ = w.WriteRow(idNameRow(0)) })
	assert.Equal(t, errors.ErrorTypeInvariant, perr.Type)

	perr = recoverError(t, func() { _, _ = w.Serialize(NewBytesView(0), 0) })
	assert.Equal(t, errors.ErrorTypeInvariant, perr.Type)
}

func TestSerializeEmptyRepositions(t *testing.T) {
	w, _ := newTestWriter(t, 1024, idNameRowType, nil)
	out := NewBytesView(64)

	n, err := w.Serialize(out, 32)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 32, out.Position())
	assert.Len(t, out.Bytes(), 32)
}

func TestSerializeMatchesSizeAndIsRepeatable(t *testing.T) {
	w, _ := newTestWriter(t, 64*1024, idNameRowType, nil)
	for i := 0; i < 100; i++ {
		require.NoError(t, w.WriteRow(idNameRow(i)))
	}

	size, err := w.SizeInBytes()
	require.NoError(t, err)
	body, err := w.BodyLength()
	require.NoError(t, err)
	assert.Equal(t, w.MetadataLength()+body, size)

	out := NewBytesView(size)
	n, err := w.Serialize(out, 0)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Len(t, out.Bytes(), size)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, out.Bytes()[:4])

	// serialize does not reset
	assert.Equal(t, 100, w.RecordsCount())
	again := NewBytesView(size)
	n, err = w.Serialize(again, 0)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, out.Bytes(), again.Bytes())
}

func TestStaleRecycleIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	w, p := newTestWriter(t, 1024, idNameRowType, nil, WithMetrics(metrics.NewWriterMetrics(reg)))
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteRow(idNameRow(i)))
	}

	stale := w.Epoch()
	w.IncreaseEpoch()
	w.Recycle(stale)

	assert.Equal(t, 0, p.calls)
	assert.Equal(t, 3, w.RecordsCount())
	assert.Equal(t, StateAcquired, w.State())

	const expected = `
# HELP arrowlog_stale_recycles_total Recycle calls ignored because they did not match the current use cycle
# TYPE arrowlog_stale_recycles_total counter
arrowlog_stale_recycles_total 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "arrowlog_stale_recycles_total"))
}

func TestRecycleCurrentEpoch(t *testing.T) {
	w, p := newTestWriter(t, 1024, idNameRowType, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteRow(idNameRow(i)))
	}

	w.Recycle(w.Epoch())
	assert.Equal(t, 1, p.calls)
	assert.Same(t, w, p.recycled[0])
	assert.Equal(t, 0, w.RecordsCount())
	assert.Equal(t, StateInPool, w.State())

	// a second recycle in the same epoch finds the writer already pooled
	w.Recycle(w.Epoch())
	assert.Equal(t, 1, p.calls)
}

func TestCloseRecyclesCurrentEpoch(t *testing.T) {
	w, p := newTestWriter(t, 1024, idNameRowType, nil)
	require.NoError(t, w.WriteRow(idNameRow(1)))
	require.NoError(t, w.Close())
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 0, w.RecordsCount())
}

func TestResetForcesExactRecomputation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWriterMetrics(reg)
	w, _ := newTestWriter(t, 64*1024, idNameRowType, nil, WithMetrics(m))

	require.NoError(t, w.WriteRow(idNameRow(0)))
	require.False(t, w.IsFull())
	stale := w.estimatedMaxRecordsCount
	require.Greater(t, stale, 10)

	w.Reset(2 * 64 * 1024)
	assert.Equal(t, 0, w.RecordsCount())
	assert.Equal(t, 125829, w.WriteLimitInBytes())
	assert.Equal(t, unknownMaxRecords, w.estimatedMaxRecordsCount)

	require.NoError(t, w.WriteRow(idNameRow(1)))
	require.False(t, w.IsFull())
	assert.NotEqual(t, stale, w.estimatedMaxRecordsCount)

	const expected = `
# HELP arrowlog_size_measurements_total Exact batch size computations performed by fullness checks
# TYPE arrowlog_size_measurements_total counter
arrowlog_size_measurements_total{codec="NONE"} 2
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "arrowlog_size_measurements_total"))
}

// Budget of 1024 * 0.96 = 983 bytes. The writer reports full once the
// batch reaches the budget, so the serialized batch is at least the
// budget and, with uniform rows, within the buffer.
func TestFillSmallBufferAndRecycle(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	w, p := newTestWriter(t, 1024, idNameRowType, mem)
	defer w.release()
	require.Equal(t, 983, w.WriteLimitInBytes())
	emptyBody, err := w.BodyLength()
	require.NoError(t, err)

	i := 0
	for !w.IsFull() {
		require.NoError(t, w.WriteRow(idNameRow(i)))
		i++
	}

	out := NewBytesView(1024)
	n, err := w.Serialize(out, 0)
	require.NoError(t, err)

	size, err := w.SizeInBytes()
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.GreaterOrEqual(t, n, 983)
	assert.LessOrEqual(t, n, 1024)

	rec, err := ReadRecordBatch(out.Bytes(), w.ArrowSchema(), mem)
	require.NoError(t, err)
	assert.Equal(t, int64(i), rec.NumRows())
	rec.Release()

	w.Recycle(w.Epoch())
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 0, w.RecordsCount())
	for i, v := range w.vectors {
		assert.Zero(t, v.length, "column %d", i)
		assert.Zero(t, v.nulls, "column %d", i)
	}
	body, err := w.BodyLength()
	require.NoError(t, err)
	assert.Equal(t, emptyBody, body)
}

func TestRoundTripIDName(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	w, _ := newTestWriter(t, 1<<20, idNameRowType, mem)
	defer w.release()

	const n = 500
	want := make([]types.GenericRow, n)
	for i := range want {
		want[i] = idNameRow(i)
		require.NoError(t, w.WriteRow(want[i]))
	}

	out := NewBytesView(0)
	_, err := w.Serialize(out, 0)
	require.NoError(t, err)

	rec, err := ReadRecordBatch(out.Bytes(), w.ArrowSchema(), mem)
	require.NoError(t, err)
	defer rec.Release()

	got, err := RowsFromRecord(rec, idNameRowType)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoundTripAllKindsGrowable(t *testing.T) {
	codecs := []compression.ArrowCompressionInfo{
		compression.NoCompression,
		{Type: compression.ArrowLZ4Frame, Level: compression.NoCompressionLevel},
		{Type: compression.ArrowZstd, Level: compression.DefaultZstdLevel},
	}
	rowType := testutil.AllKindsRowType()

	for _, info := range codecs {
		t.Run(info.String(), func(t *testing.T) {
			mem := testutil.CheckedAllocator(t)
			w, err := NewWriter("all", 8<<20, rowType, mem, ReleasingProvider{}, info,
				WithInitialCapacity(16), WithLogger(testutil.TestLogger(t)))
			require.NoError(t, err)
			defer w.Close()

			// past the initial capacity the writer grows its columns
			const n = 100
			want := make([]types.GenericRow, n)
			for i := range want {
				want[i] = testutil.AllKindsRow(i)
				require.False(t, w.IsFull())
				require.NoError(t, w.WriteRow(want[i]))
			}

			out := NewBytesView(0)
			size, err := w.Serialize(out, 0)
			require.NoError(t, err)
			exact, err := w.SizeInBytes()
			require.NoError(t, err)
			assert.Equal(t, exact, size)

			rec, err := ReadRecordBatch(out.Bytes(), w.ArrowSchema(), mem)
			require.NoError(t, err)
			defer rec.Release()

			got, err := RowsFromRecord(rec, rowType)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestResetShrinksGrownColumns(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	w, err := NewWriter("grow", 8<<20, idNameRowType, mem, ReleasingProvider{}, compression.NoCompression,
		WithInitialCapacity(8))
	require.NoError(t, err)

	afterCreate := mem.CurrentAlloc()
	for i := 0; i < 200; i++ {
		require.NoError(t, w.WriteRow(idNameRow(i)))
	}
	require.Greater(t, mem.CurrentAlloc(), afterCreate)

	w.Reset(8 << 20)
	assert.Equal(t, afterCreate, mem.CurrentAlloc())

	require.NoError(t, w.WriteRow(idNameRow(1)))
	require.NoError(t, w.Close())
	assert.Equal(t, 0, mem.CurrentAlloc())
}

func TestOvershootUniformRows(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, bufferSize := range []int{4 << 10, 64 << 10, 1 << 20} {
		w, _ := newTestWriter(t, bufferSize, idNameRowType, nil)
		i := 0
		for !w.IsFull() {
			require.NoError(t, w.WriteRow(types.GenericRow{int32(i), testutil.RandomString(r, 16)}))
			i++
		}
		size, err := w.SizeInBytes()
		require.NoError(t, err)
		limit := w.WriteLimitInBytes()
		assert.GreaterOrEqual(t, size, limit)
		assert.Less(t, float64(size-limit), 0.1*float64(limit), "buffer %d: size %d", bufferSize, size)
	}
}

// Short rows early make the estimate optimistic; once rows turn long the
// batch overshoots until the next measurement. The check still fires,
// and the serialized size stays exact.
func TestOvershootAdversarialRows(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	w, _ := newTestWriter(t, 256<<10, idNameRowType, nil)

	i := 0
	for !w.IsFull() {
		require.Less(t, i, 1<<20)
		n := 1
		if i >= 64 {
			n = 4096
		}
		require.NoError(t, w.WriteRow(types.GenericRow{int32(i), testutil.RandomString(r, n)}))
		i++
	}

	size, err := w.SizeInBytes()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, size, w.WriteLimitInBytes())

	out := NewBytesView(size)
	n, err := w.Serialize(out, 0)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	t.Logf("rows %d, size %d, limit %d, overshoot %.1f%%", i, size, w.WriteLimitInBytes(),
		100*float64(size-w.WriteLimitInBytes())/float64(w.WriteLimitInBytes()))
}

func TestZeroWidthRowsEventuallyFull(t *testing.T) {
	rowType := types.MustRowType(types.NewField("s", types.String()))
	w, _ := newTestWriter(t, 4096, rowType, nil)

	i := 0
	for !w.IsFull() {
		require.Less(t, i, 100000)
		require.NoError(t, w.WriteRow(types.GenericRow{""}))
		i++
	}
	assert.Positive(t, i)
}
