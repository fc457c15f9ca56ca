package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowlog/pkg/arrowlog"
	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/logrecord"
	segmem "github.com/ajitpratap0/arrowlog/pkg/memory"
	"github.com/ajitpratap0/arrowlog/pkg/metrics"
	"github.com/ajitpratap0/arrowlog/pkg/testutil"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

var eventType = types.MustRowType(
	types.NewField("id", types.BigInt().NotNull()),
	types.NewField("msg", types.String()),
)

type memSink struct {
	mu       sync.Mutex
	segments []Segment
	failAt   int // fail the n-th write (1-based), 0 never
}

func (s *memSink) WriteSegment(_ context.Context, seg Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.segments)+1 == s.failAt {
		return errors.New(errors.ErrorTypeIO, "disk full")
	}
	s.segments = append(s.segments, seg)
	return nil
}

func jsonLines(from, n int) string {
	var b strings.Builder
	for i := from; i < from+n; i++ {
		if i%4 == 0 {
			fmt.Fprintf(&b, "{\"id\":%d,\"msg\":null}\n", i)
			continue
		}
		fmt.Fprintf(&b, "{\"id\":%d,\"msg\":\"event number %d\"}\n", i, i)
	}
	return b.String()
}

func newPipeline(t *testing.T, opts Options, sink SegmentSink, m *metrics.WriterMetrics) (*Pipeline, *arrowlog.WriterPool) {
	t.Helper()
	writers := arrowlog.NewWriterPool(testutil.CheckedAllocator(t), arrowlog.WithPoolLogger(testutil.TestLogger(t)))
	t.Cleanup(func() { _ = writers.Close() })
	pages, err := segmem.NewSegmentPool(4096, 0)
	require.NoError(t, err)

	p, err := NewPipeline(eventType, opts, writers, pages, sink, testutil.TestLogger(t), m)
	require.NoError(t, err)
	return p, writers
}

// decodeAll returns every row stored in the sink's segments in order.
func decodeAll(t *testing.T, segments []Segment) []types.GenericRow {
	t.Helper()
	var rows []types.GenericRow
	next := segments[0].BaseOffset
	for _, seg := range segments {
		require.Equal(t, next, seg.BaseOffset)
		batches, err := DecodeSegment(seg.Data)
		require.NoError(t, err)

		it := logrecord.NewIterator(batches, eventType, nil)
		n := 0
		for it.Next() {
			b := it.Batch()
			assert.Equal(t, next, b.Header.BaseOffset)
			next += int64(b.Header.RecordCount)
			rows = append(rows, b.Rows...)
			n++
		}
		require.NoError(t, it.Err())
		assert.Equal(t, seg.Batches, n)
	}
	return rows
}

func TestPipelineRoundTrip(t *testing.T) {
	for _, algo := range []compression.Algorithm{compression.None, compression.Zstd, compression.S2} {
		t.Run(string(algo), func(t *testing.T) {
			opts := DefaultOptions()
			opts.BaseOffset = 100
			opts.BufferSize = 2048
			opts.SegmentBatches = 3
			opts.Compression = compression.ArrowCompressionInfo{Type: compression.ArrowLZ4Frame, Level: compression.NoCompressionLevel}
			opts.SegmentCompression = &compression.Config{Algorithm: algo, Level: compression.Fastest}

			sink := &memSink{}
			reg := prometheus.NewRegistry()
			p, writers := newPipeline(t, opts, sink, metrics.NewWriterMetrics(reg))

			ctx, cancel := testutil.TestContext(t)
			defer cancel()
			stats, err := p.Run(ctx, strings.NewReader(jsonLines(0, 500)))
			require.NoError(t, err)

			assert.Equal(t, int64(500), stats.RowsRead)
			assert.Equal(t, int64(600), stats.NextOffset)
			assert.Equal(t, int64(600), p.NextOffset())
			assert.Greater(t, stats.Batches, int64(3), "small buffers need several batches")
			assert.Equal(t, int64(len(sink.segments)), stats.Segments)

			rows := decodeAll(t, sink.segments)
			require.Len(t, rows, 500)
			for i, r := range rows {
				assert.Equal(t, int64(i), r[0])
				if i%4 == 0 {
					assert.Nil(t, r[1])
				} else {
					assert.Equal(t, fmt.Sprintf("event number %d", i), r[1])
				}
			}

			// batches are built one at a time, so one writer serves them all
			assert.Equal(t, int64(1), writers.Stats().Created)
		})
	}
}

func TestPipelineContinuesOffsets(t *testing.T) {
	sink := &memSink{}
	p, _ := newPipeline(t, DefaultOptions(), sink, nil)

	_, err := p.Run(context.Background(), strings.NewReader(jsonLines(0, 10)))
	require.NoError(t, err)
	stats, err := p.Run(context.Background(), strings.NewReader(jsonLines(10, 5)))
	require.NoError(t, err)
	assert.Equal(t, int64(15), stats.NextOffset)

	require.Len(t, sink.segments, 2)
	assert.Equal(t, int64(10), sink.segments[1].BaseOffset)
	assert.Len(t, decodeAll(t, sink.segments), 15)
}

func TestPipelineTransforms(t *testing.T) {
	sink := &memSink{}
	p, _ := newPipeline(t, DefaultOptions(), sink, nil)
	p.AddTransform(FilterTransform(func(r types.GenericRow) bool { return !r.IsNullAt(1) }))
	p.AddTransform(FieldConverterTransform(1, func(v any) (any, error) {
		return strings.ToUpper(v.(string)), nil
	}))

	stats, err := p.Run(context.Background(), strings.NewReader(jsonLines(0, 8)))
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.RowsRead)
	assert.Equal(t, int64(2), stats.RowsDropped)
	assert.Equal(t, int64(6), stats.NextOffset)

	rows := decodeAll(t, sink.segments)
	require.Len(t, rows, 6)
	assert.Equal(t, "EVENT NUMBER 1", rows[0][1])
}

func TestPipelineEmptyInput(t *testing.T) {
	sink := &memSink{}
	p, _ := newPipeline(t, DefaultOptions(), sink, nil)

	stats, err := p.Run(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, stats.RowsRead)
	assert.Empty(t, sink.segments)
}

func TestPipelineBadInput(t *testing.T) {
	sink := &memSink{}
	p, _ := newPipeline(t, DefaultOptions(), sink, nil)

	input := jsonLines(0, 3) + `{"id":"three","msg":"x"}` + "\n"
	_, err := p.Run(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData), "%v", err)
	assert.Zero(t, p.NextOffset())
}

func TestPipelineSinkFailure(t *testing.T) {
	opts := DefaultOptions()
	opts.BufferSize = 1024
	opts.SegmentBatches = 1
	sink := &memSink{failAt: 2}
	p, _ := newPipeline(t, opts, sink, nil)

	_, err := p.Run(context.Background(), strings.NewReader(jsonLines(0, 400)))
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Len(t, sink.segments, 1)
}

func TestPipelineCancelled(t *testing.T) {
	p, _ := newPipeline(t, DefaultOptions(), &memSink{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, strings.NewReader(jsonLines(0, 5000)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPipelineValidation(t *testing.T) {
	writers := arrowlog.NewWriterPool(nil)
	defer writers.Close()
	pages, err := segmem.NewSegmentPool(1024, 0)
	require.NoError(t, err)

	_, err = NewPipeline(eventType, DefaultOptions(), nil, pages, &memSink{}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	opts := DefaultOptions()
	opts.BufferSize = 0
	_, err = NewPipeline(eventType, opts, writers, pages, &memSink{}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	opts = DefaultOptions()
	opts.SegmentCompression = &compression.Config{Algorithm: "brotli"}
	_, err = NewPipeline(eventType, opts, writers, pages, &memSink{}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDecodeSegmentRejectsGarbage(t *testing.T) {
	_, err := DecodeSegment(nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	_, err = DecodeSegment([]byte{200, 1, 2})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	cp, err := compression.NewCompressorPool(&compression.Config{Algorithm: compression.Zstd})
	require.NoError(t, err)
	data, err := EncodeSegment(cp, bytes.Repeat([]byte("abc"), 100))
	require.NoError(t, err)
	assert.Equal(t, compression.Zstd.Code(), data[0])

	_, err = DecodeSegment(data[:len(data)/2])
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}
