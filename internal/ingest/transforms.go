package ingest

import (
	"context"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// FilterTransform keeps the rows matching predicate.
//
//	// drop rows without a name
//	p.AddTransform(FilterTransform(func(r types.GenericRow) bool {
//	    return !r.IsNullAt(1)
//	}))
func FilterTransform(predicate func(types.GenericRow) bool) Transform {
	return func(_ context.Context, row types.GenericRow) (types.GenericRow, error) {
		if predicate(row) {
			return row, nil
		}
		return nil, nil
	}
}

// FieldConverterTransform replaces the value at pos with converter's
// result. Null cells are passed to the converter too.
func FieldConverterTransform(pos int, converter func(any) (any, error)) Transform {
	return func(_ context.Context, row types.GenericRow) (types.GenericRow, error) {
		if pos < 0 || pos >= len(row) {
			return nil, errors.Newf(errors.ErrorTypeValidation, "field %d out of range for %d fields", pos, len(row))
		}
		v, err := converter(row[pos])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to convert field").WithDetail("field", pos)
		}
		row[pos] = v
		return row, nil
	}
}
