// Package arrowlog writes rows into size-budgeted Arrow IPC record
// batches.
//
// A Writer accumulates rows column by column and reports through IsFull
// when the serialized batch would reach its budget, a fixed share
// (BufferUsageRatio) of the buffer size it was created or reset with.
// Computing the exact size means encoding the batch, so IsFull only does
// it when the row count reaches an estimate derived from the previous
// measurement. Serialize writes the batch as one encapsulated IPC record
// batch message (no schema, no end-of-stream marker) at a position of an
// OutputView:
//
//	0xFFFFFFFF | int32 metadata size | flatbuffer Message | padding | body
//
// Writers are pooled. WriterPool keys them by table, schema and codec and
// takes them back through Recycle. Every hand-out is a new epoch, and a
// Recycle carrying an older epoch is ignored, so a late release from a
// previous owner cannot clear the batch of the current one.
//
// Basic usage:
//
//	p := arrowlog.NewWriterPool(memory.NewGoAllocator())
//	defer p.Close()
//
//	w, err := p.GetOrCreateWriter(tableID, schemaID, 1<<20, rowType, compression.NoCompression)
//	if err != nil {
//		return err
//	}
//	epoch := w.Epoch()
//	defer w.Recycle(epoch)
//
//	for _, row := range rows {
//		if w.IsFull() {
//			break
//		}
//		if err := w.WriteRow(row); err != nil {
//			return err
//		}
//	}
//	out := arrowlog.NewBytesView(1 << 20)
//	n, err := w.Serialize(out, 0)
//
// Blocks are decoded with ReadRecordBatch and RowsFromRecord.
package arrowlog
