package logrecord

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/pkg/arrowlog"
	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
	"github.com/ajitpratap0/arrowlog/pkg/memory"
	"github.com/ajitpratap0/arrowlog/pkg/observability"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// BatchOptions identifies the batch a builder produces.
type BatchOptions struct {
	TableID     int64
	SchemaID    int32
	BaseOffset  int64
	BufferSize  int
	RowType     types.RowType
	Compression compression.ArrowCompressionInfo
}

// ArrowLogBuilder builds one log batch: it holds a pooled writer for its
// lifetime, appends rows until the writer is full and frames the
// serialized block with a Header.
type ArrowLogBuilder struct {
	opts     BatchOptions
	writer   *arrowlog.Writer
	epoch    int64
	segments *memory.SegmentPool
	logger   *zap.Logger
	closed   bool
}

// NewArrowLogBuilder acquires a writer from writers. Output pages come
// from segments.
func NewArrowLogBuilder(writers *arrowlog.WriterPool, segments *memory.SegmentPool, opts BatchOptions, log *zap.Logger) (*ArrowLogBuilder, error) {
	w, err := writers.GetOrCreateWriter(opts.TableID, int(opts.SchemaID), opts.BufferSize, opts.RowType, opts.Compression)
	if err != nil {
		return nil, err
	}
	return &ArrowLogBuilder{
		opts:     opts,
		writer:   w,
		epoch:    w.Epoch(),
		segments: segments,
		logger: logger.OrGlobal(log).With(
			zap.Int64("table_id", opts.TableID),
			zap.Int64("base_offset", opts.BaseOffset)),
	}, nil
}

// Append adds row to the batch. It returns false, with nothing written,
// once the batch is full.
func (b *ArrowLogBuilder) Append(row types.Row) (bool, error) {
	if b.closed {
		return false, errors.New(errors.ErrorTypeClosed, "log batch builder is closed")
	}
	if b.writer.IsFull() {
		return false, nil
	}
	if err := b.writer.WriteRow(row); err != nil {
		return false, err
	}
	return true, nil
}

// RecordCount returns the rows appended so far.
func (b *ArrowLogBuilder) RecordCount() int {
	if b.closed {
		return 0
	}
	return b.writer.RecordsCount()
}

// IsFull reports whether the next Append would be refused.
func (b *ArrowLogBuilder) IsFull() bool {
	return !b.closed && b.writer.IsFull()
}

// Build serializes the batch behind a header and returns the framed
// bytes. The builder keeps its rows, so a failed Build can be retried.
func (b *ArrowLogBuilder) Build(ctx context.Context) ([]byte, error) {
	if b.closed {
		return nil, errors.New(errors.ErrorTypeClosed, "log batch builder is closed")
	}

	var out []byte
	err := observability.TraceBatch(ctx, "logrecord.build", b.writer.RecordsCount(), func(context.Context) error {
		view := memory.NewPagedOutputView(b.segments)
		defer view.Release()

		n, err := b.writer.Serialize(view, HeaderSize)
		if err != nil {
			return err
		}
		batchLen := HeaderSize + n
		if batchLen > int(^uint32(0)>>1) {
			return errors.New(errors.ErrorTypeSize, "log batch too large").WithDetail("batch_length", batchLen)
		}

		framed := view.Bytes()
		h := Header{
			Version:     CurrentVersion,
			Compression: b.opts.Compression.Type,
			BaseOffset:  b.opts.BaseOffset,
			SchemaID:    b.opts.SchemaID,
			RecordCount: int32(b.writer.RecordsCount()),
			BatchLength: int32(batchLen),
			CRC:         Checksum(framed[HeaderSize:batchLen]),
		}
		h.AppendTo(framed[:0])
		out = framed[:batchLen]
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("built log batch",
		zap.Int("records", b.writer.RecordsCount()),
		zap.Int("bytes", len(out)))
	return out, nil
}

// Close recycles the writer. Calling it again is a no-op, and a writer
// that was already handed to another builder is left alone.
func (b *ArrowLogBuilder) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.writer.Recycle(b.epoch)
	return nil
}
