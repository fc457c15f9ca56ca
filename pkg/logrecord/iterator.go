package logrecord

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowlog/pkg/arrowlog"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// Batch is one decoded log batch.
type Batch struct {
	Header Header
	Rows   []types.GenericRow
}

// Iterator decodes consecutive log batches from a segment. All batches
// must share one row type.
//
//	it := logrecord.NewIterator(segment, rowType, nil)
//	for it.Next() {
//		b := it.Batch()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator struct {
	data    []byte
	pos     int
	rowType types.RowType
	schema  *arrow.Schema
	mem     memory.Allocator

	cur Batch
	err error
}

// NewIterator creates an iterator over segment. mem defaults to the Go
// allocator.
func NewIterator(segment []byte, rowType types.RowType, mem memory.Allocator) *Iterator {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Iterator{
		data:    segment,
		rowType: rowType,
		schema:  types.ToArrowSchema(rowType),
		mem:     mem,
	}
}

// Next decodes the next batch. It returns false at the end of the segment
// or on the first corrupt batch; Err tells them apart.
func (it *Iterator) Next() bool {
	if it.err != nil || it.pos >= len(it.data) {
		return false
	}

	h, err := DecodeHeader(it.data[it.pos:])
	if err != nil {
		it.fail(err)
		return false
	}
	end := it.pos + int(h.BatchLength)
	if end > len(it.data) {
		it.fail(errors.Newf(errors.ErrorTypeData, "log batch of %d bytes is truncated to %d", h.BatchLength, len(it.data)-it.pos))
		return false
	}
	block := it.data[it.pos+HeaderSize : end]
	if crc := Checksum(block); crc != h.CRC {
		it.fail(errors.Newf(errors.ErrorTypeData, "log batch checksum mismatch: header %08x, block %08x", h.CRC, crc))
		return false
	}

	batch := Batch{Header: h}
	if h.RecordCount > 0 {
		rec, err := arrowlog.ReadRecordBatch(block, it.schema, it.mem)
		if err != nil {
			it.fail(err)
			return false
		}
		rows, err := arrowlog.RowsFromRecord(rec, it.rowType)
		rec.Release()
		if err != nil {
			it.fail(err)
			return false
		}
		if len(rows) != int(h.RecordCount) {
			it.fail(errors.Newf(errors.ErrorTypeData, "header claims %d records, block holds %d", h.RecordCount, len(rows)))
			return false
		}
		batch.Rows = rows
	}

	it.cur = batch
	it.pos = end
	return true
}

func (it *Iterator) fail(err error) {
	e, ok := err.(*errors.Error)
	if !ok {
		e = errors.Wrap(err, errors.ErrorTypeData, "failed to decode log batch")
	}
	it.err = e.WithDetail("position", it.pos)
}

// Batch returns the batch decoded by the last successful Next.
func (it *Iterator) Batch() Batch { return it.cur }

// Position returns the offset of the next batch in the segment.
func (it *Iterator) Position() int { return it.pos }

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error { return it.err }
