// Package types defines the row type system accepted by arrowlog writers:
// a closed set of logical kinds, ordered row types, and the Row accessor
// interface writers read cells through.
package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// Kind is the logical type of a column.
type Kind int

const (
	KindBoolean Kind = iota
	KindTinyInt
	KindSmallInt
	KindInt
	KindBigInt
	KindFloat
	KindDouble
	KindString
	KindBytes
	KindBinary
	KindDate
	KindTime
	KindTimestampNtz
	KindTimestampLtz
)

var kindNames = [...]string{
	KindBoolean:      "BOOLEAN",
	KindTinyInt:      "TINYINT",
	KindSmallInt:     "SMALLINT",
	KindInt:          "INT",
	KindBigInt:       "BIGINT",
	KindFloat:        "FLOAT",
	KindDouble:       "DOUBLE",
	KindString:       "STRING",
	KindBytes:        "BYTES",
	KindBinary:       "BINARY",
	KindDate:         "DATE",
	KindTime:         "TIME",
	KindTimestampNtz: "TIMESTAMP",
	KindTimestampLtz: "TIMESTAMP_LTZ",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind parses a kind name, case-insensitively. A few common aliases
// (INTEGER, BOOL, VARCHAR, ...) are accepted.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "BOOL":
		return KindBoolean, nil
	case "BYTE":
		return KindTinyInt, nil
	case "SHORT":
		return KindSmallInt, nil
	case "INTEGER":
		return KindInt, nil
	case "LONG":
		return KindBigInt, nil
	case "VARCHAR", "TEXT":
		return KindString, nil
	case "TIMESTAMP_NTZ":
		return KindTimestampNtz, nil
	}
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeValidation, "unknown type %q", s)
}

// DataType is a Kind plus its parameters.
type DataType struct {
	Kind Kind
	// Length is the byte width of a BINARY(n) column and zero otherwise.
	Length   int
	Nullable bool
}

func Boolean() DataType      { return DataType{Kind: KindBoolean, Nullable: true} }
func TinyInt() DataType      { return DataType{Kind: KindTinyInt, Nullable: true} }
func SmallInt() DataType     { return DataType{Kind: KindSmallInt, Nullable: true} }
func Int() DataType          { return DataType{Kind: KindInt, Nullable: true} }
func BigInt() DataType       { return DataType{Kind: KindBigInt, Nullable: true} }
func Float() DataType        { return DataType{Kind: KindFloat, Nullable: true} }
func Double() DataType       { return DataType{Kind: KindDouble, Nullable: true} }
func String() DataType       { return DataType{Kind: KindString, Nullable: true} }
func Bytes() DataType        { return DataType{Kind: KindBytes, Nullable: true} }
func Date() DataType         { return DataType{Kind: KindDate, Nullable: true} }
func Time() DataType         { return DataType{Kind: KindTime, Nullable: true} }
func TimestampNtz() DataType { return DataType{Kind: KindTimestampNtz, Nullable: true} }
func TimestampLtz() DataType { return DataType{Kind: KindTimestampLtz, Nullable: true} }

// Binary returns a fixed width binary type of n bytes.
func Binary(n int) DataType { return DataType{Kind: KindBinary, Length: n, Nullable: true} }

// NotNull returns a copy of t that rejects nulls.
func (t DataType) NotNull() DataType {
	t.Nullable = false
	return t
}

func (t DataType) String() string {
	s := t.Kind.String()
	if t.Kind == KindBinary {
		s += "(" + strconv.Itoa(t.Length) + ")"
	}
	if !t.Nullable {
		s += " NOT NULL"
	}
	return s
}

// ParseDataType parses forms like "INT", "binary(16)" or "STRING NOT NULL".
func ParseDataType(s string) (DataType, error) {
	decl := strings.ToUpper(strings.TrimSpace(s))
	nullable := true
	if strings.HasSuffix(decl, " NOT NULL") {
		nullable = false
		decl = strings.TrimSpace(strings.TrimSuffix(decl, " NOT NULL"))
	}

	length := 0
	if open := strings.IndexByte(decl, '('); open >= 0 {
		if !strings.HasSuffix(decl, ")") {
			return DataType{}, errors.Newf(errors.ErrorTypeValidation, "malformed type %q", s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(decl[open+1 : len(decl)-1]))
		if err != nil {
			return DataType{}, errors.Wrap(err, errors.ErrorTypeValidation, fmt.Sprintf("malformed type length in %q", s))
		}
		length = n
		decl = strings.TrimSpace(decl[:open])
	}

	kind, err := ParseKind(decl)
	if err != nil {
		return DataType{}, err
	}
	dt := DataType{Kind: kind, Length: length, Nullable: nullable}
	if err := dt.Validate(); err != nil {
		return DataType{}, err
	}
	return dt, nil
}

// Validate checks the type parameters.
func (t DataType) Validate() error {
	if t.Kind < KindBoolean || t.Kind > KindTimestampLtz {
		return errors.Newf(errors.ErrorTypeValidation, "unknown kind %d", int(t.Kind))
	}
	if t.Kind == KindBinary {
		if t.Length <= 0 {
			return errors.Newf(errors.ErrorTypeValidation, "BINARY length must be positive, got %d", t.Length)
		}
	} else if t.Length != 0 {
		return errors.Newf(errors.ErrorTypeValidation, "%s takes no length", t.Kind)
	}
	return nil
}
