// Package ingest turns a stream of JSON lines into segment files of arrow
// log batches.
//
// # Architecture
//
// A run has three stages connected by channels:
//   - Reader: decodes JSON lines into rows and applies transforms
//   - Batcher: appends rows to pooled batch writers and frames full batches
//   - Segmenter: groups batches, compresses them and hands them to a sink
//
// Offsets are assigned in input order, so the batcher is a single
// goroutine; the reader and segmenter overlap with it.
//
// # Basic Usage
//
//	writers := arrowlog.NewWriterPool(memory.DefaultAllocator)
//	defer writers.Close()
//	pages, _ := segmem.NewSegmentPool(64<<10, 0)
//	sink, _ := ingest.NewDirSink("out")
//
//	p, err := ingest.NewPipeline(rowType, ingest.DefaultOptions(), writers, pages, sink, logger, nil)
//	...
//	stats, err := p.Run(ctx, os.Stdin)
package ingest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/pkg/arrowlog"
	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	jsonpool "github.com/ajitpratap0/arrowlog/pkg/json"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
	"github.com/ajitpratap0/arrowlog/pkg/logrecord"
	segmem "github.com/ajitpratap0/arrowlog/pkg/memory"
	"github.com/ajitpratap0/arrowlog/pkg/metrics"
	"github.com/ajitpratap0/arrowlog/pkg/observability"
	"github.com/ajitpratap0/arrowlog/pkg/pool"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// Pipeline ingests JSON lines of one row type. A Pipeline can be run
// repeatedly; each run continues at the offset the last one stopped at.
type Pipeline struct {
	rowType     types.RowType
	codec       *jsonpool.RowCodec
	opts        Options
	writers     *arrowlog.WriterPool
	pages       *segmem.SegmentPool
	compressors *compression.CompressorPool
	sink        SegmentSink
	transforms  []Transform

	logger     *zap.Logger
	throughput *metrics.ThroughputTracker

	nextOffset int64
}

// framedBatch is a built log batch on its way to the segmenter.
type framedBatch struct {
	baseOffset int64
	records    int
	data       []byte
}

// runState carries the counters and first error of one run.
type runState struct {
	cancel context.CancelFunc

	rowsRead    atomic.Int64
	rowsDropped atomic.Int64
	batches     atomic.Int64
	segments    atomic.Int64
	bytes       atomic.Int64

	once sync.Once
	err  error
}

func (s *runState) fail(err error) {
	s.once.Do(func() {
		s.err = err
		s.cancel()
	})
}

// NewPipeline creates a pipeline writing through writers and pages into
// sink. m may be nil.
func NewPipeline(
	rowType types.RowType,
	opts Options,
	writers *arrowlog.WriterPool,
	pages *segmem.SegmentPool,
	sink SegmentSink,
	log *zap.Logger,
	m *metrics.WriterMetrics,
) (*Pipeline, error) {
	if writers == nil || pages == nil || sink == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "writer pool, page pool and sink are required")
	}
	if rowType.FieldCount() == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "row type has no fields")
	}
	if opts.BufferSize <= 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "buffer size must be positive, got %d", opts.BufferSize)
	}
	if err := opts.Compression.Validate(); err != nil {
		return nil, err
	}
	if opts.SegmentBatches <= 0 {
		opts.SegmentBatches = DefaultOptions().SegmentBatches
	}
	if opts.ChannelSize <= 0 {
		opts.ChannelSize = DefaultOptions().ChannelSize
	}
	compressors, err := compression.NewCompressorPool(opts.SegmentCompression)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		rowType:     rowType,
		codec:       jsonpool.NewRowCodec(rowType),
		opts:        opts,
		writers:     writers,
		pages:       pages,
		compressors: compressors,
		sink:        sink,
		logger: logger.OrGlobal(log).With(
			zap.Int64("table_id", opts.TableID),
			zap.Int32("schema_id", opts.SchemaID)),
		throughput: metrics.NewThroughputTracker(m),
		nextOffset: opts.BaseOffset,
	}, nil
}

// AddTransform adds a transformation applied to every decoded row.
func (p *Pipeline) AddTransform(t Transform) {
	p.transforms = append(p.transforms, t)
}

// NextOffset returns the offset the next ingested row will get.
func (p *Pipeline) NextOffset() int64 { return p.nextOffset }

// Run ingests r until EOF, the first error or cancellation of ctx.
// Segments already handed to the sink stay there when Run fails.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (stats Stats, err error) {
	ctx, span := observability.StartSpan(ctx, "ingest.run")
	defer func() { span.End(err) }()
	if err := ctx.Err(); err != nil {
		return Stats{NextOffset: p.nextOffset}, err
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	st := &runState{cancel: cancel}

	p.logger.Info("starting ingest",
		zap.Int64("base_offset", p.nextOffset),
		zap.Int("buffer_size", p.opts.BufferSize),
		zap.Stringer("codec", p.opts.Compression),
		zap.Int("transforms", len(p.transforms)))

	rowChan := make(chan types.GenericRow, p.opts.ChannelSize)
	batchChan := make(chan framedBatch, p.opts.SegmentBatches)
	nextOffset := p.nextOffset

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer close(rowChan)
		if err := p.readRows(ctx, r, rowChan, st); err != nil {
			st.fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		defer close(batchChan)
		next, err := p.buildBatches(ctx, rowChan, batchChan, st)
		if err != nil {
			st.fail(err)
			return
		}
		nextOffset = next
	}()
	go func() {
		defer wg.Done()
		if err := p.writeSegments(ctx, batchChan, st); err != nil {
			st.fail(err)
		}
	}()
	wg.Wait()

	stats = Stats{
		RowsRead:    st.rowsRead.Load(),
		RowsDropped: st.rowsDropped.Load(),
		Batches:     st.batches.Load(),
		Segments:    st.segments.Load(),
		Bytes:       st.bytes.Load(),
		Duration:    time.Since(start),
	}
	if st.err != nil {
		stats.NextOffset = p.nextOffset
		p.logger.Error("ingest failed", zap.Error(st.err), zap.Int64("rows_read", stats.RowsRead))
		return stats, st.err
	}
	p.nextOffset = nextOffset
	stats.NextOffset = nextOffset

	span.SetAttribute("rows", stats.RowsRead)
	span.SetAttribute("segments", stats.Segments)
	p.logger.Info("ingest completed",
		zap.Int64("rows_read", stats.RowsRead),
		zap.Int64("rows_dropped", stats.RowsDropped),
		zap.Int64("batches", stats.Batches),
		zap.Int64("segments", stats.Segments),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("duration", stats.Duration),
		zap.Float64("throughput_rps", p.throughput.GetAndReset()))
	return stats, nil
}

// readRows decodes JSON lines and applies the transforms.
func (p *Pipeline) readRows(ctx context.Context, r io.Reader, out chan<- types.GenericRow, st *runState) error {
	dec := jsonpool.NewRowDecoder(r, p.codec)
	for {
		row, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		st.rowsRead.Add(1)

		for _, t := range p.transforms {
			if row, err = t(ctx, row); err != nil {
				return err
			}
			if row == nil {
				break
			}
		}
		if row == nil {
			st.rowsDropped.Add(1)
			continue
		}
		if len(row) != p.rowType.FieldCount() {
			return errors.Newf(errors.ErrorTypeValidation, "transform produced %d fields, row type has %d",
				len(row), p.rowType.FieldCount())
		}

		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) newBuilder(baseOffset int64) (*logrecord.ArrowLogBuilder, error) {
	return logrecord.NewArrowLogBuilder(p.writers, p.pages, logrecord.BatchOptions{
		TableID:     p.opts.TableID,
		SchemaID:    p.opts.SchemaID,
		BaseOffset:  baseOffset,
		BufferSize:  p.opts.BufferSize,
		RowType:     p.rowType,
		Compression: p.opts.Compression,
	}, p.logger)
}

// buildBatches fills log batches in input order and returns the offset
// after the last row.
func (p *Pipeline) buildBatches(ctx context.Context, in <-chan types.GenericRow, out chan<- framedBatch, st *runState) (int64, error) {
	offset := p.nextOffset
	var b *logrecord.ArrowLogBuilder
	defer func() {
		if b != nil {
			_ = b.Close()
		}
	}()

	flush := func() error {
		framed, err := b.Build(ctx)
		if err != nil {
			return err
		}
		n := b.RecordCount()
		_ = b.Close()
		b = nil

		select {
		case out <- framedBatch{baseOffset: offset, records: n, data: framed}:
		case <-ctx.Done():
			return ctx.Err()
		}
		st.batches.Add(1)
		p.throughput.Increment(int64(n))
		offset += int64(n)
		return nil
	}

	for {
		select {
		case row, ok := <-in:
			if !ok {
				if b != nil && b.RecordCount() > 0 {
					if err := flush(); err != nil {
						return 0, err
					}
				}
				return offset, nil
			}

			if b == nil {
				var err error
				if b, err = p.newBuilder(offset); err != nil {
					return 0, err
				}
			}
			ok, err := b.Append(row)
			if err != nil {
				return 0, err
			}
			if ok {
				continue
			}

			if err := flush(); err != nil {
				return 0, err
			}
			if b, err = p.newBuilder(offset); err != nil {
				return 0, err
			}
			if ok, err = b.Append(row); err != nil {
				return 0, err
			}
			if !ok {
				return 0, errors.New(errors.ErrorTypeInvariant, "row refused by an empty batch")
			}

		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// writeSegments groups batches into segments and writes them to the sink.
func (p *Pipeline) writeSegments(ctx context.Context, in <-chan framedBatch, st *runState) error {
	var pending []framedBatch
	size := 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		seg := Segment{BaseOffset: pending[0].baseOffset, Batches: len(pending)}
		for _, fb := range pending {
			seg.Records += int64(fb.records)
		}

		err := observability.TraceBatch(ctx, "ingest.segment", int(seg.Records), func(ctx context.Context) error {
			payload := pool.GlobalBufferPool.Get(size)[:0]
			for _, fb := range pending {
				payload = append(payload, fb.data...)
			}
			data, err := EncodeSegment(p.compressors, payload)
			pool.GlobalBufferPool.Put(payload)
			if err != nil {
				return err
			}
			seg.Data = data
			return p.sink.WriteSegment(ctx, seg)
		})
		if err != nil {
			return err
		}

		st.segments.Add(1)
		st.bytes.Add(int64(len(seg.Data)))
		p.logger.Debug("wrote segment",
			zap.Int64("base_offset", seg.BaseOffset),
			zap.Int("batches", seg.Batches),
			zap.Int64("records", seg.Records),
			zap.Int("bytes", len(seg.Data)))
		pending = pending[:0]
		size = 0
		return nil
	}

	for {
		select {
		case fb, ok := <-in:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return flush()
			}
			pending = append(pending, fb)
			size += len(fb.data)
			if len(pending) >= p.opts.SegmentBatches {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}
