package arrowlog

import (
	"encoding/binary"
	"math"

	"github.com/apache/arrow-go/v18/arrow/bitutil"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// FieldWriter appends exactly one cell of a row to its column.
//
// With handleSafe false the writer assumes the column already has room for
// one more row and indexes its buffers directly; writing past the reserved
// capacity panics. With handleSafe true it grows the buffers first.
type FieldWriter interface {
	Write(row types.Row, ordinal int, handleSafe bool)
}

// newFieldWriter selects the writer variant for a column type.
func newFieldWriter(dt types.DataType, v *vector) FieldWriter {
	switch dt.Kind {
	case types.KindBoolean:
		return &boolWriter{vec: v}
	case types.KindString, types.KindBytes:
		return &varWidthWriter{vec: v, text: dt.Kind == types.KindString}
	case types.KindBinary:
		return &fixedSizeBinaryWriter{vec: v, width: dt.Length}
	case types.KindTinyInt:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			dst[0] = byte(r.GetByte(i))
		}}
	case types.KindSmallInt:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			binary.LittleEndian.PutUint16(dst, uint16(r.GetShort(i)))
		}}
	case types.KindInt, types.KindDate, types.KindTime:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			binary.LittleEndian.PutUint32(dst, uint32(r.GetInt(i)))
		}}
	case types.KindBigInt:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			binary.LittleEndian.PutUint64(dst, uint64(r.GetLong(i)))
		}}
	case types.KindFloat:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			binary.LittleEndian.PutUint32(dst, math.Float32bits(r.GetFloat(i)))
		}}
	case types.KindDouble:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			binary.LittleEndian.PutUint64(dst, math.Float64bits(r.GetDouble(i)))
		}}
	case types.KindTimestampNtz:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			binary.LittleEndian.PutUint64(dst, uint64(types.NtzMicros(r.GetTimestamp(i))))
		}}
	case types.KindTimestampLtz:
		return &fixedWidthWriter{vec: v, encode: func(r types.Row, i int, dst []byte) {
			binary.LittleEndian.PutUint64(dst, uint64(r.GetTimestamp(i).UnixMicro()))
		}}
	default:
		panic(errors.Newf(errors.ErrorTypeInvariant, "no field writer for %s", dt))
	}
}

type boolWriter struct {
	vec *vector
}

func (w *boolWriter) Write(row types.Row, ordinal int, handleSafe bool) {
	v := w.vec
	i := v.length
	if handleSafe {
		v.reserveRows(i + 1)
	}
	if row.IsNullAt(ordinal) {
		v.setValidity(i, false)
	} else {
		v.setValidity(i, true)
		bitutil.SetBitTo(v.values.Buf(), i, row.GetBoolean(ordinal))
	}
	v.length++
}

// fixedWidthWriter covers every column whose cells are a fixed number of
// little-endian bytes.
type fixedWidthWriter struct {
	vec    *vector
	encode func(row types.Row, ordinal int, dst []byte)
}

func (w *fixedWidthWriter) Write(row types.Row, ordinal int, handleSafe bool) {
	v := w.vec
	i := v.length
	if handleSafe {
		v.reserveRows(i + 1)
	}
	if row.IsNullAt(ordinal) {
		v.setValidity(i, false)
	} else {
		v.setValidity(i, true)
		bw := v.byteWidth
		w.encode(row, ordinal, v.values.Buf()[i*bw:(i+1)*bw])
	}
	v.length++
}

type fixedSizeBinaryWriter struct {
	vec   *vector
	width int
}

func (w *fixedSizeBinaryWriter) Write(row types.Row, ordinal int, handleSafe bool) {
	v := w.vec
	i := v.length
	if handleSafe {
		v.reserveRows(i + 1)
	}
	if row.IsNullAt(ordinal) {
		v.setValidity(i, false)
	} else {
		b := row.GetBytes(ordinal)
		if len(b) != w.width {
			panic(errors.Newf(errors.ErrorTypeInvariant,
				"BINARY(%d) cell %d has %d bytes", w.width, ordinal, len(b)))
		}
		v.setValidity(i, true)
		copy(v.values.Buf()[i*w.width:(i+1)*w.width], b)
	}
	v.length++
}

// varWidthWriter appends STRING and BYTES cells. Offsets follow the row
// capacity; the data buffer always grows on demand.
type varWidthWriter struct {
	vec  *vector
	text bool
}

func (w *varWidthWriter) Write(row types.Row, ordinal int, handleSafe bool) {
	v := w.vec
	i := v.length
	if handleSafe {
		v.reserveRows(i + 1)
	}
	if row.IsNullAt(ordinal) {
		v.setValidity(i, false)
	} else {
		v.setValidity(i, true)
		if w.text {
			s := row.GetString(ordinal)
			v.reserveData(len(s))
			v.dataUsed += copy(v.values.Buf()[v.dataUsed:], s)
		} else {
			b := row.GetBytes(ordinal)
			v.reserveData(len(b))
			v.dataUsed += copy(v.values.Buf()[v.dataUsed:], b)
		}
	}
	v.setOffset(i+1, v.dataUsed)
	v.length++
}
