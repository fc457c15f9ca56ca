package json

import (
	"bytes"
	"encoding/base64"
	"io"
	"math"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// Text forms of DATE, TIME and TIMESTAMP cells.
const (
	DateLayout         = "2006-01-02"
	TimeLayout         = "15:04:05.000"
	TimestampNtzLayout = "2006-01-02T15:04:05.999999"
)

// RowCodec converts rows of a RowType to and from JSON objects keyed by
// field name. BYTES and BINARY cells are base64 strings; DATE, TIME and
// TIMESTAMP cells are strings in the layouts above, TIMESTAMP_LTZ in
// RFC 3339. Decoding also accepts DATE and TIME as plain integers (days
// since epoch, millis of day) and TIMESTAMP as epoch microseconds.
type RowCodec struct {
	rowType types.RowType
}

// NewRowCodec creates a codec for rowType.
func NewRowCodec(rowType types.RowType) *RowCodec {
	return &RowCodec{rowType: rowType}
}

// RowType returns the codec's row type.
func (c *RowCodec) RowType() types.RowType { return c.rowType }

// AppendRow appends row as a JSON object to dst. Fields appear in schema
// order; null cells are written as null.
func (c *RowCodec) AppendRow(dst []byte, row types.Row) ([]byte, error) {
	if row.FieldCount() != c.rowType.FieldCount() {
		return dst, errors.Newf(errors.ErrorTypeValidation,
			"row has %d fields, schema has %d", row.FieldCount(), c.rowType.FieldCount())
	}
	dst = append(dst, '{')
	for i := 0; i < c.rowType.FieldCount(); i++ {
		f := c.rowType.FieldAt(i)
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendQuote(dst, f.Name)
		dst = append(dst, ':')
		if row.IsNullAt(i) {
			dst = append(dst, "null"...)
			continue
		}
		v, err := encodeCell(row, i, f.Type)
		if err != nil {
			return dst, err
		}
		b, err := gojson.Marshal(v)
		if err != nil {
			return dst, errors.Wrap(err, errors.ErrorTypeData, "failed to encode cell").WithDetail("field", f.Name)
		}
		dst = append(dst, b...)
	}
	return append(dst, '}'), nil
}

// EncodeRow returns row as a JSON object.
func (c *RowCodec) EncodeRow(row types.Row) ([]byte, error) {
	return c.AppendRow(nil, row)
}

func encodeCell(row types.Row, i int, dt types.DataType) (any, error) {
	switch dt.Kind {
	case types.KindBoolean:
		return row.GetBoolean(i), nil
	case types.KindTinyInt:
		return row.GetByte(i), nil
	case types.KindSmallInt:
		return row.GetShort(i), nil
	case types.KindInt:
		return row.GetInt(i), nil
	case types.KindBigInt:
		return row.GetLong(i), nil
	case types.KindFloat:
		return row.GetFloat(i), nil
	case types.KindDouble:
		return row.GetDouble(i), nil
	case types.KindString:
		return row.GetString(i), nil
	case types.KindBytes, types.KindBinary:
		return base64.StdEncoding.EncodeToString(row.GetBytes(i)), nil
	case types.KindDate:
		return types.TimeFromDate(row.GetInt(i)).Format(DateLayout), nil
	case types.KindTime:
		ms := time.Duration(row.GetInt(i)) * time.Millisecond
		return time.Time{}.Add(ms).Format(TimeLayout), nil
	case types.KindTimestampNtz:
		return row.GetTimestamp(i).Format(TimestampNtzLayout), nil
	case types.KindTimestampLtz:
		return row.GetTimestamp(i).Format(time.RFC3339Nano), nil
	}
	return nil, errors.Newf(errors.ErrorTypeInternal, "no JSON encoding for %s", dt)
}

// DecodeRow parses one JSON object into a row. Missing fields are null.
// Null in a NOT NULL field and values that do not fit their field are
// rejected with a data error.
func (c *RowCodec) DecodeRow(data []byte) (types.GenericRow, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid JSON row")
	}
	return c.fromObject(obj)
}

func (c *RowCodec) fromObject(obj map[string]any) (types.GenericRow, error) {
	row := make(types.GenericRow, c.rowType.FieldCount())
	for i := range row {
		f := c.rowType.FieldAt(i)
		raw, ok := obj[f.Name]
		if !ok || raw == nil {
			if !f.Type.Nullable {
				return nil, errors.Newf(errors.ErrorTypeData, "field %q is NOT NULL", f.Name)
			}
			continue
		}
		v, err := decodeCell(raw, f.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid cell").
				WithDetail("field", f.Name).
				WithDetail("type", f.Type.String())
		}
		row[i] = v
	}
	return row, nil
}

func decodeCell(raw any, dt types.DataType) (any, error) {
	switch dt.Kind {
	case types.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, unexpected(raw, "boolean")
		}
		return b, nil
	case types.KindTinyInt:
		n, err := integer(raw, math.MinInt8, math.MaxInt8)
		return int8(n), err
	case types.KindSmallInt:
		n, err := integer(raw, math.MinInt16, math.MaxInt16)
		return int16(n), err
	case types.KindInt:
		n, err := integer(raw, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case types.KindBigInt:
		return integer(raw, math.MinInt64, math.MaxInt64)
	case types.KindFloat:
		f, err := float(raw)
		return float32(f), err
	case types.KindDouble:
		return float(raw)
	case types.KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, unexpected(raw, "string")
		}
		return s, nil
	case types.KindBytes, types.KindBinary:
		s, ok := raw.(string)
		if !ok {
			return nil, unexpected(raw, "base64 string")
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		if dt.Kind == types.KindBinary && len(b) != dt.Length {
			return nil, errors.Newf(errors.ErrorTypeData, "want %d bytes, got %d", dt.Length, len(b))
		}
		return b, nil
	case types.KindDate:
		if s, ok := raw.(string); ok {
			t, err := time.Parse(DateLayout, s)
			if err != nil {
				return nil, err
			}
			return types.DateFromTime(t), nil
		}
		n, err := integer(raw, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case types.KindTime:
		if s, ok := raw.(string); ok {
			t, err := time.Parse(TimeLayout, s)
			if err != nil {
				return nil, err
			}
			return types.MillisOfDay(t), nil
		}
		n, err := integer(raw, 0, 86400000-1)
		return int32(n), err
	case types.KindTimestampNtz, types.KindTimestampLtz:
		if s, ok := raw.(string); ok {
			layout := time.RFC3339Nano
			if dt.Kind == types.KindTimestampNtz {
				layout = TimestampNtzLayout
			}
			t, err := time.Parse(layout, s)
			if err != nil {
				return nil, err
			}
			return t.UTC(), nil
		}
		n, err := integer(raw, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		return time.UnixMicro(n).UTC(), nil
	}
	return nil, errors.Newf(errors.ErrorTypeInternal, "no JSON decoding for %s", dt)
}

func integer(raw any, lo, hi int64) (int64, error) {
	num, ok := raw.(gojson.Number)
	if !ok {
		return 0, unexpected(raw, "integer")
	}
	n, err := num.Int64()
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, errors.Newf(errors.ErrorTypeData, "%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func float(raw any) (float64, error) {
	num, ok := raw.(gojson.Number)
	if !ok {
		return 0, unexpected(raw, "number")
	}
	return num.Float64()
}

func unexpected(raw any, want string) error {
	return errors.Newf(errors.ErrorTypeData, "got %T, want %s", raw, want)
}

// RowDecoder reads a stream of JSON objects, such as JSON lines, as rows.
type RowDecoder struct {
	codec *RowCodec
	dec   *gojson.Decoder
	n     int
}

// NewRowDecoder creates a decoder reading from r.
func NewRowDecoder(r io.Reader, codec *RowCodec) *RowDecoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return &RowDecoder{codec: codec, dec: dec}
}

// Next returns the next row, or io.EOF at the end of the stream.
func (d *RowDecoder) Next() (types.GenericRow, error) {
	var obj map[string]any
	if err := d.dec.Decode(&obj); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid JSON row").WithDetail("row", d.n)
	}
	row, err := d.codec.fromObject(obj)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.WithDetail("row", d.n)
		}
		return nil, err
	}
	d.n++
	return row, nil
}

// RowEncoder writes rows as JSON lines.
type RowEncoder struct {
	codec *RowCodec
	w     io.Writer
	buf   []byte
}

// NewRowEncoder creates an encoder writing to w.
func NewRowEncoder(w io.Writer, codec *RowCodec) *RowEncoder {
	return &RowEncoder{codec: codec, w: w}
}

// Encode writes row followed by a newline.
func (e *RowEncoder) Encode(row types.Row) error {
	b, err := e.codec.AppendRow(e.buf[:0], row)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	e.buf = b
	if _, err := e.w.Write(b); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write JSON row")
	}
	return nil
}
