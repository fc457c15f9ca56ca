package types

import (
	"fmt"
	"time"
)

// Row gives positional access to the cells of one row. Getters are only
// called for non-null cells of the matching kind:
//
//	BOOLEAN            GetBoolean
//	TINYINT            GetByte
//	SMALLINT           GetShort
//	INT, DATE, TIME    GetInt (days since epoch, millis of day)
//	BIGINT             GetLong
//	FLOAT, DOUBLE      GetFloat, GetDouble
//	STRING             GetString
//	BYTES, BINARY(n)   GetBytes
//	TIMESTAMP*         GetTimestamp
type Row interface {
	FieldCount() int
	IsNullAt(pos int) bool
	GetBoolean(pos int) bool
	GetByte(pos int) int8
	GetShort(pos int) int16
	GetInt(pos int) int32
	GetLong(pos int) int64
	GetFloat(pos int) float32
	GetDouble(pos int) float64
	GetString(pos int) string
	GetBytes(pos int) []byte
	GetTimestamp(pos int) time.Time
}

// GenericRow is a Row backed by a slice of Go values. A nil element is a
// null cell. Integer getters accept any Go integer type and convert it;
// floating getters additionally accept integers. Any other value panics.
type GenericRow []any

var _ Row = GenericRow(nil)

func (r GenericRow) FieldCount() int       { return len(r) }
func (r GenericRow) IsNullAt(pos int) bool { return r[pos] == nil }

func (r GenericRow) GetBoolean(pos int) bool {
	v, ok := r[pos].(bool)
	if !ok {
		panic(mismatch(pos, "bool", r[pos]))
	}
	return v
}

func (r GenericRow) GetByte(pos int) int8     { return int8(r.integer(pos)) }
func (r GenericRow) GetShort(pos int) int16   { return int16(r.integer(pos)) }
func (r GenericRow) GetInt(pos int) int32     { return int32(r.integer(pos)) }
func (r GenericRow) GetLong(pos int) int64    { return r.integer(pos) }
func (r GenericRow) GetFloat(pos int) float32 { return float32(r.GetDouble(pos)) }

func (r GenericRow) GetDouble(pos int) float64 {
	switch v := r[pos].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	}
	return float64(r.integer(pos))
}

func (r GenericRow) GetString(pos int) string {
	switch v := r[pos].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	panic(mismatch(pos, "string", r[pos]))
}

func (r GenericRow) GetBytes(pos int) []byte {
	switch v := r[pos].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	panic(mismatch(pos, "[]byte", r[pos]))
}

func (r GenericRow) GetTimestamp(pos int) time.Time {
	v, ok := r[pos].(time.Time)
	if !ok {
		panic(mismatch(pos, "time.Time", r[pos]))
	}
	return v
}

func (r GenericRow) integer(pos int) int64 {
	switch v := r[pos].(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case uint:
		return int64(v)
	}
	panic(mismatch(pos, "integer", r[pos]))
}

func mismatch(pos int, want string, got any) string {
	return fmt.Sprintf("types: cell %d is %T, not %s", pos, got, want)
}

// Epoch day and time-of-day helpers for DATE and TIME cells.

// DateFromTime returns the days since 1970-01-01 of t's calendar date.
func DateFromTime(t time.Time) int32 {
	y, m, d := t.Date()
	return int32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// TimeFromDate converts days since epoch back to a UTC midnight.
func TimeFromDate(days int32) time.Time {
	return time.Unix(int64(days)*86400, 0).UTC()
}

// MillisOfDay returns the milliseconds elapsed since midnight in t's zone.
func MillisOfDay(t time.Time) int32 {
	h, m, s := t.Clock()
	return int32(((h*60+m)*60+s)*1000 + t.Nanosecond()/int(time.Millisecond))
}

// NtzMicros encodes the wall clock of t, ignoring its zone, as
// microseconds since the epoch. TIMESTAMP columns store this value.
func NtzMicros(t time.Time) int64 {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC).UnixMicro()
}
