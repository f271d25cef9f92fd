package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
)

// SubRow is one element of an array field, waiting for its parent key.
type SubRow struct {
	Field string
	Index int

	// Values holds "value" for scalar elements, or the element's own fields
	// for object elements.
	Values domain.Row
}

// Flattened is one record split into its scalar row and array elements.
type Flattened struct {
	Row     domain.Row
	SubRows []SubRow

	// ArrayFields lists every array-valued field, empty arrays included.
	ArrayFields []string
}

// Flatten splits rec into a scalar row for table and one SubRow per array
// element. Nested objects stay in the scalar row as serialized JSON.
func Flatten(rec domain.Record, table string) (Flattened, error) {
	out := Flattened{Row: make(domain.Row, len(rec.Fields))}

	for _, field := range sortedKeys(rec.Fields) {
		val := rec.Fields[field]
		items, isArray := val.([]any)
		if !isArray {
			scalar, err := toScalar(val)
			if err != nil {
				return Flattened{}, fmt.Errorf("Flatten %s.%s: %w", table, field, err)
			}
			out.Row[field] = scalar
			continue
		}

		out.ArrayFields = append(out.ArrayFields, field)
		for i, item := range items {
			values, err := elementValues(item)
			if err != nil {
				return Flattened{}, fmt.Errorf("Flatten %s.%s[%d]: %w", table, field, i, err)
			}
			out.SubRows = append(out.SubRows, SubRow{Field: field, Index: i, Values: values})
		}
	}

	return out, nil
}

// elementValues maps one array element onto sub-table columns. Object
// elements are spread one level; their own nested values stay opaque.
func elementValues(item any) (domain.Row, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		v, err := toScalar(item)
		if err != nil {
			return nil, err
		}
		return domain.Row{domain.ColumnValue: v}, nil
	}

	row := make(domain.Row, len(obj))
	for k, v := range obj {
		scalar, err := toScalar(v)
		if err != nil {
			return nil, err
		}
		row[elementColumn(k)] = scalar
	}
	return row, nil
}

// elementColumn keeps spread object fields from shadowing the fixed columns.
func elementColumn(field string) string {
	switch field {
	case domain.ColumnParentID, domain.ColumnIndex, domain.ColumnValue:
		return "value_" + field
	}
	return field
}

// toScalar passes scalars through and serializes objects and arrays.
func toScalar(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("serializing nested value: %w", err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}
