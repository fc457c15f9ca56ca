package types

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// ArrowType returns the Arrow physical type a column of t is stored as.
func (t DataType) ArrowType() arrow.DataType {
	switch t.Kind {
	case KindBoolean:
		return arrow.FixedWidthTypes.Boolean
	case KindTinyInt:
		return arrow.PrimitiveTypes.Int8
	case KindSmallInt:
		return arrow.PrimitiveTypes.Int16
	case KindInt:
		return arrow.PrimitiveTypes.Int32
	case KindBigInt:
		return arrow.PrimitiveTypes.Int64
	case KindFloat:
		return arrow.PrimitiveTypes.Float32
	case KindDouble:
		return arrow.PrimitiveTypes.Float64
	case KindString:
		return arrow.BinaryTypes.String
	case KindBytes:
		return arrow.BinaryTypes.Binary
	case KindBinary:
		return &arrow.FixedSizeBinaryType{ByteWidth: t.Length}
	case KindDate:
		return arrow.FixedWidthTypes.Date32
	case KindTime:
		return arrow.FixedWidthTypes.Time32ms
	case KindTimestampNtz:
		return &arrow.TimestampType{Unit: arrow.Microsecond}
	case KindTimestampLtz:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		panic("types: unsupported kind " + t.Kind.String())
	}
}

// ToArrowSchema maps a row type to an Arrow schema with the same field
// names, order and nullability.
func ToArrowSchema(rt RowType) *arrow.Schema {
	fields := make([]arrow.Field, rt.FieldCount())
	for i, f := range rt.fields {
		fields[i] = arrow.Field{
			Name:     f.Name,
			Type:     f.Type.ArrowType(),
			Nullable: f.Type.Nullable,
		}
	}
	return arrow.NewSchema(fields, nil)
}

// FromArrowSchema is the inverse of ToArrowSchema. Arrow types with no
// counterpart in the closed kind set are rejected.
func FromArrowSchema(schema *arrow.Schema) (RowType, error) {
	fields := make([]Field, schema.NumFields())
	for i, af := range schema.Fields() {
		dt, err := fromArrowType(af.Type)
		if err != nil {
			return RowType{}, errors.Wrap(err, errors.ErrorTypeValidation, "field "+af.Name)
		}
		dt.Nullable = af.Nullable
		fields[i] = Field{Name: af.Name, Type: dt}
	}
	return NewRowType(fields...)
}

func fromArrowType(at arrow.DataType) (DataType, error) {
	switch at.ID() {
	case arrow.BOOL:
		return Boolean(), nil
	case arrow.INT8:
		return TinyInt(), nil
	case arrow.INT16:
		return SmallInt(), nil
	case arrow.INT32:
		return Int(), nil
	case arrow.INT64:
		return BigInt(), nil
	case arrow.FLOAT32:
		return Float(), nil
	case arrow.FLOAT64:
		return Double(), nil
	case arrow.STRING:
		return String(), nil
	case arrow.BINARY:
		return Bytes(), nil
	case arrow.FIXED_SIZE_BINARY:
		return Binary(at.(*arrow.FixedSizeBinaryType).ByteWidth), nil
	case arrow.DATE32:
		return Date(), nil
	case arrow.TIME32:
		if at.(*arrow.Time32Type).Unit == arrow.Millisecond {
			return Time(), nil
		}
	case arrow.TIMESTAMP:
		ts := at.(*arrow.TimestampType)
		if ts.Unit != arrow.Microsecond {
			break
		}
		if ts.TimeZone == "" {
			return TimestampNtz(), nil
		}
		return TimestampLtz(), nil
	}
	return DataType{}, errors.Newf(errors.ErrorTypeValidation, "unsupported arrow type %s", at)
}
