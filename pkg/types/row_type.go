package types

import (
	"strings"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// Field is a named column.
type Field struct {
	Name string
	Type DataType
}

// NewField returns a Field.
func NewField(name string, dt DataType) Field { return Field{Name: name, Type: dt} }

// RowType is an ordered, immutable list of fields.
type RowType struct {
	fields []Field
}

// NewRowType builds a RowType from fields. Names must be unique and
// non-empty, and every type must validate.
func NewRowType(fields ...Field) (RowType, error) {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return RowType{}, errors.Newf(errors.ErrorTypeValidation, "field %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return RowType{}, errors.Newf(errors.ErrorTypeValidation, "duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := f.Type.Validate(); err != nil {
			return RowType{}, errors.Wrap(err, errors.ErrorTypeValidation, "field "+f.Name)
		}
	}
	return RowType{fields: append([]Field(nil), fields...)}, nil
}

// MustRowType is NewRowType that panics on error. Intended for tests and
// package level schema definitions.
func MustRowType(fields ...Field) RowType {
	rt, err := NewRowType(fields...)
	if err != nil {
		panic(err)
	}
	return rt
}

// FieldCount returns the number of columns.
func (r RowType) FieldCount() int { return len(r.fields) }

// FieldAt returns the i-th field.
func (r RowType) FieldAt(i int) Field { return r.fields[i] }

// TypeAt returns the type of the i-th field.
func (r RowType) TypeAt(i int) DataType { return r.fields[i].Type }

// Fields returns a copy of the field list.
func (r RowType) Fields() []Field { return append([]Field(nil), r.fields...) }

// FieldIndex returns the ordinal of the named field or -1.
func (r RowType) FieldIndex(name string) int {
	for i, f := range r.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Fingerprint is a stable string identity for the row type, e.g.
// "id:INT NOT NULL,name:STRING".
func (r RowType) Fingerprint() string {
	var b strings.Builder
	for i, f := range r.fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(f.Type.String())
	}
	return b.String()
}

func (r RowType) String() string { return "ROW<" + r.Fingerprint() + ">" }
