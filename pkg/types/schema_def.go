package types

import (
	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// FieldDef is the configuration form of a field:
//
//	schema:
//	  - name: id
//	    type: INT NOT NULL
//	  - name: payload
//	    type: BINARY(16)
type FieldDef struct {
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	Type string `yaml:"type" json:"type" mapstructure:"type"`
}

// RowTypeFromDefs parses a list of field definitions.
func RowTypeFromDefs(defs []FieldDef) (RowType, error) {
	if len(defs) == 0 {
		return RowType{}, errors.New(errors.ErrorTypeValidation, "schema has no fields")
	}
	fields := make([]Field, len(defs))
	for i, d := range defs {
		dt, err := ParseDataType(d.Type)
		if err != nil {
			return RowType{}, errors.Wrap(err, errors.ErrorTypeValidation, "field "+d.Name)
		}
		fields[i] = Field{Name: d.Name, Type: dt}
	}
	return NewRowType(fields...)
}

// Defs is the inverse of RowTypeFromDefs.
func (r RowType) Defs() []FieldDef {
	defs := make([]FieldDef, len(r.fields))
	for i, f := range r.fields {
		defs[i] = FieldDef{Name: f.Name, Type: f.Type.String()}
	}
	return defs
}
