package arrowlog

import (
	"bytes"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// ReadRecordBatch decodes a block produced by Writer.Serialize. Blocks do
// not carry their schema, so the caller supplies the one they were
// written with. The caller must Release the record.
func ReadRecordBatch(block []byte, schema *arrow.Schema, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	var prefix bytes.Buffer
	payload := ipc.GetSchemaPayload(schema, mem)
	meta := payload.Meta()
	_, err := writeMessage(&prefix, meta.Bytes())
	meta.Release()
	payload.Release()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode schema message")
	}

	r, err := ipc.NewReader(io.MultiReader(&prefix, bytes.NewReader(block)), ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open record batch")
	}
	defer r.Release()

	rec, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New(errors.ErrorTypeData, "block holds no record batch")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode record batch")
	}
	rec.Retain()
	return rec, nil
}

// RowsFromRecord converts rec to rows typed as in rowType. Cells are Go
// values a GenericRow accepts back: DATE and TIME as int32, timestamps as
// UTC time.Time, BYTES and BINARY copied out of the record.
func RowsFromRecord(rec arrow.Record, rowType types.RowType) ([]types.GenericRow, error) {
	if int(rec.NumCols()) != rowType.FieldCount() {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"record has %d columns, row type has %d", rec.NumCols(), rowType.FieldCount())
	}

	n := int(rec.NumRows())
	cells := make([]any, n*rowType.FieldCount())
	rows := make([]types.GenericRow, n)
	for i := range rows {
		rows[i] = cells[i*rowType.FieldCount() : (i+1)*rowType.FieldCount()]
	}

	for c, col := range rec.Columns() {
		kind := rowType.TypeAt(c).Kind
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			v, err := cellValue(col, kind, i)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read cell").
					WithDetail("column", rowType.FieldAt(c).Name).
					WithDetail("row", i)
			}
			rows[i][c] = v
		}
	}
	return rows, nil
}

func cellValue(col arrow.Array, kind types.Kind, i int) (any, error) {
	switch a := col.(type) {
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Int8:
		return a.Value(i), nil
	case *array.Int16:
		return a.Value(i), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Float32:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.Binary:
		return bytes.Clone(a.Value(i)), nil
	case *array.FixedSizeBinary:
		return bytes.Clone(a.Value(i)), nil
	case *array.Date32:
		return int32(a.Value(i)), nil
	case *array.Time32:
		return int32(a.Value(i)), nil
	case *array.Timestamp:
		return time.UnixMicro(int64(a.Value(i))).UTC(), nil
	}
	return nil, errors.Newf(errors.ErrorTypeData, "unexpected %s column for %s", col.DataType(), kind)
}
