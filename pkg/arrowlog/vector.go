package arrowlog

import (
	"encoding/binary"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// initialVarBytesPerRow sizes the data buffer of variable width columns.
const initialVarBytesPerRow = 8

type layout uint8

const (
	layoutBool layout = iota
	layoutFixed
	layoutVar
)

// vector is one column of the batch under construction. Unlike the arrow
// builders it can be turned into ArrayData any number of times without
// losing its content, which is what exact size measurement needs.
//
// Buffers:
//
//	layoutBool   validity, bit-packed values
//	layoutFixed  validity, values (byteWidth per row)
//	layoutVar    validity, int32 offsets (rows+1), data
type vector struct {
	dtype     arrow.DataType
	layout    layout
	byteWidth int

	validity *memory.Buffer
	offsets  *memory.Buffer
	values   *memory.Buffer

	length   int
	nulls    int
	dataUsed int // bytes of values used by layoutVar

	capacity         int // rows
	initialCapacity  int
	initialValuesCap int
}

func newVector(dt types.DataType, mem memory.Allocator, capacity int) *vector {
	v := &vector{
		dtype:           dt.ArrowType(),
		initialCapacity: capacity,
	}
	switch dt.Kind {
	case types.KindBoolean:
		v.layout = layoutBool
	case types.KindString, types.KindBytes:
		v.layout = layoutVar
	default:
		v.layout = layoutFixed
		v.byteWidth = fixedByteWidth(dt)
	}

	v.validity = memory.NewResizableBuffer(mem)
	v.values = memory.NewResizableBuffer(mem)
	if v.layout == layoutVar {
		v.offsets = memory.NewResizableBuffer(mem)
	}
	v.allocate(capacity)
	v.initialValuesCap = v.values.Cap()
	v.clear()
	return v
}

func fixedByteWidth(dt types.DataType) int {
	switch dt.Kind {
	case types.KindTinyInt:
		return 1
	case types.KindSmallInt:
		return 2
	case types.KindInt, types.KindFloat, types.KindDate, types.KindTime:
		return 4
	case types.KindBigInt, types.KindDouble, types.KindTimestampNtz, types.KindTimestampLtz:
		return 8
	case types.KindBinary:
		return dt.Length
	default:
		panic("arrowlog: no fixed width for " + dt.String())
	}
}

// allocate reserves room for rows without touching content.
func (v *vector) allocate(rows int) {
	v.validity.Reserve(int(bitutil.BytesForBits(int64(rows))))
	switch v.layout {
	case layoutBool:
		v.values.Reserve(int(bitutil.BytesForBits(int64(rows))))
	case layoutFixed:
		v.values.Reserve(rows * v.byteWidth)
	case layoutVar:
		v.offsets.Reserve((rows + 1) * arrow.Int32SizeBytes)
		v.values.Reserve(rows * initialVarBytesPerRow)
	}
	v.capacity = rows
}

// reserveRows grows every row-indexed buffer geometrically so that rows
// fit.
func (v *vector) reserveRows(rows int) {
	if rows <= v.capacity {
		return
	}
	newCap := 2 * v.capacity
	if newCap < rows {
		newCap = rows
	}
	v.validity.Reserve(int(bitutil.BytesForBits(int64(newCap))))
	switch v.layout {
	case layoutBool:
		v.values.Reserve(int(bitutil.BytesForBits(int64(newCap))))
	case layoutFixed:
		v.values.Reserve(newCap * v.byteWidth)
	case layoutVar:
		v.offsets.Reserve((newCap + 1) * arrow.Int32SizeBytes)
	}
	v.capacity = newCap
}

// reserveData grows the data buffer of a variable width column so that n
// more bytes fit. Data bytes are not bounded by the row capacity, so this
// applies in both write modes.
func (v *vector) reserveData(n int) {
	need := v.dataUsed + n
	if need <= v.values.Cap() {
		return
	}
	newCap := 2 * v.values.Cap()
	if newCap < need {
		newCap = need
	}
	v.values.Reserve(newCap)
}

// setValidity records whether row i holds a value.
func (v *vector) setValidity(i int, valid bool) {
	bitutil.SetBitTo(v.validity.Buf(), i, valid)
	if !valid {
		v.nulls++
	}
}

// setOffset writes offsets[i].
func (v *vector) setOffset(i int, off int) {
	binary.LittleEndian.PutUint32(v.offsets.Buf()[i*arrow.Int32SizeBytes:], uint32(off))
}

// clear drops the content and keeps the allocations.
func (v *vector) clear() {
	v.length = 0
	v.nulls = 0
	v.dataUsed = 0
	if v.layout == layoutVar {
		v.setOffset(0, 0)
	}
}

// reset clears the vector and shrinks buffers that grew past their
// initial allocation back to it.
func (v *vector) reset() {
	if v.capacity > v.initialCapacity || v.values.Cap() > v.initialValuesCap {
		rows := int64(v.initialCapacity)
		shrink(v.validity, int(bitutil.BytesForBits(rows)))
		switch v.layout {
		case layoutBool:
			shrink(v.values, int(bitutil.BytesForBits(rows)))
		case layoutFixed:
			shrink(v.values, v.initialCapacity*v.byteWidth)
		case layoutVar:
			shrink(v.offsets, (v.initialCapacity+1)*arrow.Int32SizeBytes)
			shrink(v.values, v.initialCapacity*initialVarBytesPerRow)
		}
		v.capacity = v.initialCapacity
	}
	v.clear()
}

// shrink reallocates b down to n bytes. Resize only shrinks below the
// logical length, so the length is first raised to the capacity.
func shrink(b *memory.Buffer, n int) {
	if b.Cap() <= n {
		return
	}
	b.ResizeNoShrink(b.Cap())
	b.Resize(n)
}

// release frees every buffer. The vector is unusable afterwards.
func (v *vector) release() {
	for _, b := range []*memory.Buffer{v.validity, v.offsets, v.values} {
		if b != nil {
			b.Release()
		}
	}
	v.validity, v.offsets, v.values = nil, nil, nil
	v.length, v.nulls, v.dataUsed, v.capacity = 0, 0, 0, 0
}

// data returns zero-copy ArrayData over the current content. The caller
// must Release it. The buffers' logical lengths are set to exactly the
// bytes in use so the IPC encoder writes them without copying.
func (v *vector) data() arrow.ArrayData {
	n := int64(v.length)
	var validity *memory.Buffer
	if v.nulls > 0 {
		v.validity.ResizeNoShrink(int(bitutil.BytesForBits(n)))
		validity = v.validity
	}

	var buffers []*memory.Buffer
	switch v.layout {
	case layoutBool:
		v.values.ResizeNoShrink(int(bitutil.BytesForBits(n)))
		buffers = []*memory.Buffer{validity, v.values}
	case layoutFixed:
		v.values.ResizeNoShrink(v.length * v.byteWidth)
		buffers = []*memory.Buffer{validity, v.values}
	case layoutVar:
		v.offsets.ResizeNoShrink((v.length + 1) * arrow.Int32SizeBytes)
		v.values.ResizeNoShrink(v.dataUsed)
		buffers = []*memory.Buffer{validity, v.offsets, v.values}
	}
	return array.NewData(v.dtype, v.length, buffers, nil, v.nulls, 0)
}
