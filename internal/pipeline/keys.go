package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
)

// KeyResult is the outcome of key inference for one table.
type KeyResult struct {
	Columns  []string
	Degraded bool

	// Reason explains a degraded key.
	Reason string
}

// InferKey picks the primary key for an object's main table:
// an explicit key, then {object}Id, id, and any other *Id column, in that
// order, taking the first that is present and unique in every row. With no
// such column the key degrades to the row content hash. An empty fragment
// without an explicit key falls back to {object}Id.
func InferKey(def domain.ObjectDefinition, rows []domain.Row) KeyResult {
	if len(def.PrimaryKey) > 0 {
		if len(rows) == 0 || IsUniqueKey(rows, def.PrimaryKey) {
			return KeyResult{Columns: append([]string(nil), def.PrimaryKey...)}
		}
		return degradedKey(fmt.Sprintf("configured key %s is missing or not unique", strings.Join(def.PrimaryKey, ",")))
	}

	if len(rows) == 0 {
		return KeyResult{Columns: []string{def.IDField()}}
	}

	for _, c := range KeyCandidates(def, rows) {
		cols := []string{c}
		if IsUniqueKey(rows, cols) {
			return KeyResult{Columns: cols}
		}
	}
	return degradedKey("no unique identifier column")
}

// InferNestedKey keys a sub-table on (parent_id, _index).
func InferNestedKey(rows []domain.Row) KeyResult {
	cols := []string{domain.ColumnParentID, domain.ColumnIndex}
	if len(rows) == 0 || IsUniqueKey(rows, cols) {
		return KeyResult{Columns: cols}
	}
	return degradedKey("parent_id/_index pairs repeat")
}

func degradedKey(reason string) KeyResult {
	return KeyResult{
		Columns:  []string{domain.ColumnContentHash},
		Degraded: true,
		Reason:   reason,
	}
}

// KeyCandidates lists identifier-like columns in priority order.
// Dependent tag columns are never candidates.
func KeyCandidates(def domain.ObjectDefinition, rows []domain.Row) []string {
	present := make(map[string]bool)
	for _, row := range rows {
		for c := range row {
			present[c] = true
		}
	}

	var out []string
	seen := make(map[string]bool)
	push := func(c string) {
		if present[c] && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	push(def.IDField())
	push("id")

	var rest []string
	for c := range present {
		if strings.HasSuffix(c, "Id") && !strings.HasPrefix(c, domain.SourceColumnPrefix) {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	for _, c := range rest {
		push(c)
	}
	return out
}

// IsUniqueKey reports whether cols are non-null in every row and their
// value tuples never repeat.
func IsUniqueKey(rows []domain.Row, cols []string) bool {
	if len(cols) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		k, ok := tupleKey(row, cols)
		if !ok {
			return false
		}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}

// KeyValue returns a row's key: the value itself for single-column keys,
// a JSON array of the values for composite ones.
func KeyValue(row domain.Row, cols []string) any {
	switch len(cols) {
	case 0:
		return nil
	case 1:
		return row[cols[0]]
	}
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = row[c]
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return fmt.Sprint(vals)
	}
	return string(b)
}

func tupleKey(row domain.Row, cols []string) (string, bool) {
	var b strings.Builder
	for _, c := range cols {
		v, ok := row[c]
		if !ok || v == nil {
			return "", false
		}
		writeTyped(&b, v)
	}
	return b.String(), true
}

// ContentHash hashes a row's non-null columns in name order.
func ContentHash(row domain.Row) string {
	var b strings.Builder
	for _, c := range sortedKeys(row) {
		v := row[c]
		if v == nil || c == domain.ColumnContentHash {
			continue
		}
		writeField(&b, c)
		writeTyped(&b, v)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeTyped writes a type tag and a length-delimited value so that
// ("1", 1) and ("ab","c") vs ("a","bc") never collide.
func writeTyped(b *strings.Builder, v any) {
	var tag, s string
	switch x := v.(type) {
	case string:
		tag, s = "s", x
	case json.Number:
		tag, s = "n", x.String()
	case bool:
		tag, s = "b", strconv.FormatBool(x)
	case float64:
		tag, s = "n", strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		tag, s = "n", strconv.Itoa(x)
	case int64:
		tag, s = "n", strconv.FormatInt(x, 10)
	default:
		tag, s = "x", fmt.Sprint(x)
	}
	b.WriteString(tag)
	writeField(b, s)
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}
