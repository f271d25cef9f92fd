package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one JSON object returned by the API. Fields keep the decoded
// shape: scalars, []any for arrays and map[string]any for nested objects.
// Numbers are json.Number so large identifiers survive decoding.
type Record struct {
	Fields map[string]any

	// Parent is set when the record was produced by dependent resolution.
	Parent *ParentRef
}

// ParentRef links a dependent record back to the parent it was fetched for.
type ParentRef struct {
	Object   string
	KeyField string
	KeyValue any
}

// Row is one flat output row: column name to scalar (or nil).
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FormatValue renders a cell for text outputs. The bool is false for nil.
func FormatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return fmt.Sprint(x), true
	}
}
