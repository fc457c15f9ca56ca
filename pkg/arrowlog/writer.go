package arrowlog

import (
	"math"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
	"github.com/ajitpratap0/arrowlog/pkg/metrics"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

const (
	// InitialCapacity is the number of rows every column is preallocated
	// for. Rows below it are written in fast mode.
	InitialCapacity = 1024

	// BufferUsageRatio is the share of the buffer size a batch may fill
	// before it reports itself full. The remainder absorbs the overshoot of
	// the row estimate.
	BufferUsageRatio = 0.96

	// unknownMaxRecords forces an exact measurement on the next IsFull.
	unknownMaxRecords = -1
)

// Writer accumulates rows into Arrow columns and serializes them as one
// Arrow IPC record batch message once IsFull reports the size budget is
// reached.
//
// A Writer has a single owner at a time. Only Recycle and Epoch may be
// called from another goroutine.
type Writer struct {
	key      string
	rowType  types.RowType
	schema   *arrow.Schema
	mem      memory.Allocator
	provider WriterProvider
	info     compression.ArrowCompressionInfo
	ipcOpts  []ipc.Option

	vectors      []*vector
	fieldWriters []FieldWriter

	metadataLength  int
	initialCapacity int
	usageRatio      float64

	writeLimitInBytes        int
	estimatedMaxRecordsCount int
	recordsCount             int

	epoch atomic.Int64
	state atomic.Int32

	logger  *zap.Logger
	metrics *metrics.CodecMetrics
}

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	usageRatio      float64
	initialCapacity int
	logger          *zap.Logger
	metrics         *metrics.WriterMetrics
}

// WithUsageRatio sets the share of the buffer size a batch may fill.
func WithUsageRatio(r float64) WriterOption {
	return func(o *writerOptions) { o.usageRatio = r }
}

// WithInitialCapacity sets the preallocated row capacity.
func WithInitialCapacity(n int) WriterOption {
	return func(o *writerOptions) { o.initialCapacity = n }
}

// WithLogger sets the writer's logger.
func WithLogger(l *zap.Logger) WriterOption {
	return func(o *writerOptions) { o.logger = l }
}

// WithMetrics records writer activity to m.
func WithMetrics(m *metrics.WriterMetrics) WriterOption {
	return func(o *writerOptions) { o.metrics = m }
}

// NewWriter creates a writer in StateAcquired with epoch 0.
//
// key identifies the writer in its provider. mem defaults to the Go
// allocator when nil. Every buffer of the writer, and every temporary
// buffer used to measure or serialize it, is allocated from mem.
func NewWriter(
	key string,
	bufferSizeInBytes int,
	rowType types.RowType,
	mem memory.Allocator,
	provider WriterProvider,
	info compression.ArrowCompressionInfo,
	opts ...WriterOption,
) (*Writer, error) {
	o := writerOptions{
		usageRatio:      BufferUsageRatio,
		initialCapacity: InitialCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case provider == nil:
		return nil, errors.New(errors.ErrorTypeValidation, "writer provider is required")
	case rowType.FieldCount() == 0:
		return nil, errors.New(errors.ErrorTypeValidation, "row type has no fields")
	case bufferSizeInBytes <= 0:
		return nil, errors.Newf(errors.ErrorTypeValidation, "buffer size must be positive, got %d", bufferSizeInBytes)
	case o.usageRatio <= 0 || o.usageRatio >= 1:
		return nil, errors.Newf(errors.ErrorTypeValidation, "usage ratio must be in (0, 1), got %v", o.usageRatio)
	case o.initialCapacity <= 0:
		return nil, errors.Newf(errors.ErrorTypeValidation, "initial capacity must be positive, got %d", o.initialCapacity)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	schema := types.ToArrowSchema(rowType)
	metaLen, err := metadataLength(schema, info)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		key:             key,
		rowType:         rowType,
		schema:          schema,
		mem:             mem,
		provider:        provider,
		info:            info,
		ipcOpts:         ipcOptions(mem, info),
		metadataLength:  metaLen,
		initialCapacity: o.initialCapacity,
		usageRatio:      o.usageRatio,
		logger:          logger.OrGlobal(o.logger).With(zap.String("writer_key", key)),
		metrics:         o.metrics.ForCodec(info.Type.String()),
	}

	w.vectors = make([]*vector, rowType.FieldCount())
	w.fieldWriters = make([]FieldWriter, rowType.FieldCount())
	for i := range w.vectors {
		dt := rowType.TypeAt(i)
		w.vectors[i] = newVector(dt, mem, o.initialCapacity)
		w.fieldWriters[i] = newFieldWriter(dt, w.vectors[i])
	}

	w.writeLimitInBytes = w.writeLimit(bufferSizeInBytes)
	w.estimatedMaxRecordsCount = unknownMaxRecords
	w.state.Store(int32(StateAcquired))
	return w, nil
}

func (w *Writer) writeLimit(bufferSizeInBytes int) int {
	return int(float64(bufferSizeInBytes) * w.usageRatio)
}

// Key returns the identity of the writer in its provider.
func (w *Writer) Key() string { return w.key }

// RowType returns the schema rows are written against.
func (w *Writer) RowType() types.RowType { return w.rowType }

// ArrowSchema returns the Arrow schema of serialized batches.
func (w *Writer) ArrowSchema() *arrow.Schema { return w.schema }

// CompressionInfo returns the body codec of serialized batches.
func (w *Writer) CompressionInfo() compression.ArrowCompressionInfo { return w.info }

// RecordsCount returns the number of rows written since the last reset.
func (w *Writer) RecordsCount() int { return w.recordsCount }

// WriteLimitInBytes returns the current size budget.
func (w *Writer) WriteLimitInBytes() int { return w.writeLimitInBytes }

// MetadataLength returns the framed metadata length of every non-empty
// batch of this writer. It depends only on the schema and codec.
func (w *Writer) MetadataLength() int { return w.metadataLength }

// State returns the lifecycle state.
func (w *Writer) State() State { return State(w.state.Load()) }

func (w *Writer) setState(s State) { w.state.Store(int32(s)) }

// Epoch returns the current use cycle number.
func (w *Writer) Epoch() int64 { return w.epoch.Load() }

// IncreaseEpoch starts a new use cycle. Recycle calls carrying an earlier
// epoch become no-ops.
func (w *Writer) IncreaseEpoch() { w.epoch.Add(1) }

func (w *Writer) mustBeAcquired(op string) {
	if s := w.State(); s != StateAcquired {
		panic(errors.Newf(errors.ErrorTypeInvariant, "%s on a writer in state %s", op, s).
			WithDetail("writer_key", w.key))
	}
}

// WriteRow appends row. Callers must check IsFull first: writing into a
// full batch is a contract violation and panics with an invariant error.
// A row whose field count differs from the schema is rejected with a
// validation error and nothing is written.
func (w *Writer) WriteRow(row types.Row) error {
	w.mustBeAcquired("write row")
	if w.IsFull() {
		panic(errors.New(errors.ErrorTypeInvariant,
			"the arrow batch is full and must not accept new rows").
			WithDetail("writer_key", w.key).
			WithDetail("records", w.recordsCount))
	}
	if n := row.FieldCount(); n != len(w.fieldWriters) {
		return errors.Newf(errors.ErrorTypeValidation,
			"row has %d fields, schema has %d", n, len(w.fieldWriters))
	}

	handleSafe := w.recordsCount >= w.initialCapacity
	for i, fw := range w.fieldWriters {
		fw.Write(row, i, handleSafe)
	}
	w.recordsCount++
	w.metrics.RowWritten()
	return nil
}

// IsFull reports whether the batch reached its size budget. The exact
// size is only computed once the row count reaches the previous estimate
// of how many rows fit; in between the answer is false. A batch body too
// large for an int32 length panics with a size error.
func (w *Writer) IsFull() bool {
	if w.recordsCount == 0 || w.recordsCount < w.estimatedMaxRecordsCount {
		return false
	}

	body, err := w.BodyLength()
	if err != nil {
		panic(err)
	}
	w.metrics.SizeMeasured()

	if w.metadataLength+body >= w.writeLimitInBytes {
		return true
	}

	if body == 0 {
		w.estimatedMaxRecordsCount = w.recordsCount + 1
	} else {
		perRow := float64(body) / float64(w.recordsCount)
		w.estimatedMaxRecordsCount = int(math.Ceil(float64(w.writeLimitInBytes-w.metadataLength) / perRow))
	}
	w.logger.Debug("re-estimated batch capacity",
		zap.Int("records", w.recordsCount),
		zap.Int("body_length", body),
		zap.Int("estimated_max_records", w.estimatedMaxRecordsCount))
	return false
}

// record assembles a zero-copy record over the current columns. The
// caller must Release it.
func (w *Writer) record() arrow.Record {
	cols := make([]arrow.Array, len(w.vectors))
	for i, v := range w.vectors {
		data := v.data()
		cols[i] = array.MakeFromData(data)
		data.Release()
	}
	rec := array.NewRecord(w.schema, cols, int64(w.recordsCount))
	for _, c := range cols {
		c.Release()
	}
	return rec
}

// BodyLength returns the exact length of the batch body, compression
// included.
func (w *Writer) BodyLength() (int, error) {
	rec := w.record()
	defer rec.Release()

	n, err := bodyLength(rec, w.ipcOpts)
	if err != nil {
		return 0, err
	}
	return checkBodyLength(n)
}

// SizeInBytes returns the exact serialized size of the batch.
func (w *Writer) SizeInBytes() (int, error) {
	body, err := w.BodyLength()
	if err != nil {
		return 0, err
	}
	return w.metadataLength + body, nil
}

// Serialize moves out to position and, when the batch has rows, writes it
// there as an Arrow IPC record batch message. It returns the number of
// bytes written, 0 for an empty batch. out is always repositioned so a
// header can be reserved in front of an empty batch as well.
//
// Serialize does not reset the writer. Output failures are returned as
// io errors and leave the writer untouched, so the batch can be written
// again.
func (w *Writer) Serialize(out OutputView, position int) (int, error) {
	w.mustBeAcquired("serialize")
	if err := out.SetPosition(position); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeIO, "failed to position output").
			WithDetail("position", position)
	}
	if w.recordsCount == 0 {
		return 0, nil
	}

	timer := metrics.NewTimer()
	rec := w.record()
	defer rec.Release()

	payload, err := ipc.GetRecordBatchPayload(rec, w.ipcOpts...)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode record batch")
	}
	defer payload.Release()

	body := &countingWriter{}
	if err := payload.SerializeBody(body); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to measure record batch body")
	}
	if _, err := checkBodyLength(body.n); err != nil {
		return 0, err
	}

	meta := payload.Meta()
	defer meta.Release()

	metaLen, err := writeMessage(out, meta.Bytes())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeIO, "failed to write batch metadata")
	}
	tw := &trackingWriter{w: out}
	if err := payload.SerializeBody(tw); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeIO, "failed to write batch body")
	}

	n := metaLen + int(tw.n)
	w.metrics.BatchSerialized(n, timer.Stop())
	return n, nil
}

// Reset prepares the writer for a new use cycle with a new buffer size:
// the budget is recomputed, columns are emptied and shrunk back to the
// initial capacity, and the next IsFull measures exactly.
func (w *Writer) Reset(bufferSizeInBytes int) {
	w.writeLimitInBytes = w.writeLimit(bufferSizeInBytes)
	for _, v := range w.vectors {
		v.reset()
	}
	w.recordsCount = 0
	w.estimatedMaxRecordsCount = unknownMaxRecords
}

// Recycle ends the use cycle identified by epoch: the columns are
// cleared and the writer is handed to its provider. A stale epoch, or a
// writer that is not acquired, makes Recycle a no-op.
func (w *Writer) Recycle(epoch int64) {
	if current := w.Epoch(); current != epoch {
		w.logger.Debug("ignoring stale recycle",
			zap.Int64("epoch", epoch), zap.Int64("current_epoch", current))
		w.metrics.StaleRecycle()
		return
	}
	if !w.state.CompareAndSwap(int32(StateAcquired), int32(StatePendingRecycle)) {
		w.logger.Debug("ignoring recycle of a writer that is not acquired",
			zap.Stringer("state", w.State()))
		w.metrics.StaleRecycle()
		return
	}

	w.clear()
	w.provider.RecycleWriter(w)
	w.state.CompareAndSwap(int32(StatePendingRecycle), int32(StateInPool))
}

// Close recycles the writer in its current epoch.
func (w *Writer) Close() error {
	w.Recycle(w.Epoch())
	return nil
}

// clear empties the columns and keeps their memory.
func (w *Writer) clear() {
	for _, v := range w.vectors {
		v.clear()
	}
	w.recordsCount = 0
	w.estimatedMaxRecordsCount = unknownMaxRecords
}

// release frees every column buffer. Only providers discarding the writer
// call it.
func (w *Writer) release() {
	for _, v := range w.vectors {
		v.release()
	}
	w.vectors = nil
	w.fieldWriters = nil
	w.recordsCount = 0
}
