package pipeline

import (
	"sort"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
)

// tableBuilder accumulates rows for one output table and tracks the union
// of their columns in first-seen order.
type tableBuilder struct {
	name   string
	object string
	kind   domain.FragmentKind

	columns []string
	seen    map[string]bool
	rows    []domain.Row
}

func newTableBuilder(name, object string, kind domain.FragmentKind, seed ...string) *tableBuilder {
	b := &tableBuilder{
		name:   name,
		object: object,
		kind:   kind,
		seen:   make(map[string]bool),
	}
	for _, c := range seed {
		b.addColumn(c)
	}
	return b
}

func (b *tableBuilder) addColumn(c string) {
	if !b.seen[c] {
		b.seen[c] = true
		b.columns = append(b.columns, c)
	}
}

// add appends row and returns its position.
func (b *tableBuilder) add(row domain.Row) int {
	for _, c := range sortedKeys(row) {
		b.addColumn(c)
	}
	b.rows = append(b.rows, row)
	return len(b.rows) - 1
}

// build null-fills every row to the full column set.
func (b *tableBuilder) build(key KeyResult, mode domain.LoadMode) *domain.TableFragment {
	for _, row := range b.rows {
		for _, c := range b.columns {
			if _, ok := row[c]; !ok {
				row[c] = nil
			}
		}
	}
	return &domain.TableFragment{
		Name:        b.name,
		Object:      b.object,
		Kind:        b.kind,
		Columns:     append([]string(nil), b.columns...),
		Rows:        b.rows,
		PrimaryKey:  append([]string(nil), key.Columns...),
		LoadMode:    mode,
		DegradedKey: key.Degraded,
	}
}

// applyContentHash adds the content-hash column to every row.
func (b *tableBuilder) applyContentHash() {
	for _, row := range b.rows {
		row[domain.ColumnContentHash] = ContentHash(row)
	}
	b.addColumn(domain.ColumnContentHash)
}

// nestedBuilder is a sub-table whose rows still need parent_id.
type nestedBuilder struct {
	*tableBuilder
	field   string
	parents []int
}

// objectTables is the working set for one object: its main table and the
// sub-tables derived from its array fields.
type objectTables struct {
	def  domain.ObjectDefinition
	kind domain.FragmentKind

	main        *tableBuilder
	nested      map[string]*nestedBuilder
	nestedOrder []string

	key *KeyResult
}

func newObjectTables(def domain.ObjectDefinition, owner string, kind domain.FragmentKind) *objectTables {
	t := &objectTables{
		def:    def,
		kind:   kind,
		main:   newTableBuilder(def.Name, owner, kind),
		nested: make(map[string]*nestedBuilder),
	}
	for _, f := range def.ArrayFields {
		t.nestedFor(f)
	}
	return t
}

func (t *objectTables) nestedFor(field string) *nestedBuilder {
	if nb, ok := t.nested[field]; ok {
		return nb
	}
	nb := &nestedBuilder{
		tableBuilder: newTableBuilder(
			domain.NestedTableName(t.def.Name, field),
			t.main.object,
			domain.FragmentNested,
			domain.ColumnParentID, domain.ColumnIndex, domain.ColumnValue,
		),
		field: field,
	}
	t.nested[field] = nb
	t.nestedOrder = append(t.nestedOrder, field)
	return nb
}

// add stores a flattened record. Array fields are registered even when empty.
func (t *objectTables) add(fl Flattened) {
	pos := t.main.add(fl.Row)
	for _, f := range fl.ArrayFields {
		t.nestedFor(f)
	}
	for _, sr := range fl.SubRows {
		nb := t.nestedFor(sr.Field)
		row := sr.Values
		row[domain.ColumnIndex] = sr.Index
		nb.add(row)
		nb.parents = append(nb.parents, pos)
	}
}

// resolveKey infers the main table key once. A degraded key adds the
// content-hash column so parent_id and join values stay stable.
func (t *objectTables) resolveKey() KeyResult {
	if t.key != nil {
		return *t.key
	}
	res := InferKey(t.def, t.main.rows)
	if res.Degraded {
		t.main.applyContentHash()
	}
	t.key = &res
	return res
}

// finalize fills parent ids, infers sub-table keys and builds every fragment.
func (t *objectTables) finalize(mode domain.LoadMode) []*domain.TableFragment {
	key := t.resolveKey()
	out := []*domain.TableFragment{t.main.build(key, mode)}

	for _, field := range t.nestedOrder {
		nb := t.nested[field]
		for i, row := range nb.rows {
			row[domain.ColumnParentID] = KeyValue(t.main.rows[nb.parents[i]], key.Columns)
		}
		nk := InferNestedKey(nb.rows)
		if nk.Degraded {
			nb.applyContentHash()
		}
		out = append(out, nb.build(nk, mode))
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
