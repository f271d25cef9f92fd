package domain

// LoadMode tells the loader how a fragment relates to what is already stored.
type LoadMode string

const (
	LoadModeFullReplace       LoadMode = "full-replace"
	LoadModeIncrementalAppend LoadMode = "incremental-append"
)

// FragmentKind distinguishes the three table shapes an object can produce.
type FragmentKind string

const (
	FragmentMain      FragmentKind = "main"
	FragmentNested    FragmentKind = "nested"
	FragmentDependent FragmentKind = "dependent"
)

// Sub-table columns.
const (
	ColumnParentID = "parent_id"
	ColumnIndex    = "_index"
	ColumnValue    = "value"

	// ColumnContentHash carries the row hash when no natural key exists.
	ColumnContentHash = "_content_hash"

	// SourceColumnPrefix prefixes the parent key tag on dependent rows.
	SourceColumnPrefix = "_source_"
)

// TableFragment is one run's contribution of rows to a named output table.
// Every row has exactly the keys listed in Columns.
type TableFragment struct {
	Name    string
	Object  string
	Kind    FragmentKind
	Columns []string
	Rows    []Row

	PrimaryKey  []string
	LoadMode    LoadMode
	DegradedKey bool
}

// NestedTableName names the sub-table built from one array field.
func NestedTableName(parent, field string) string {
	return parent + "__" + field
}

// SourceColumn names the parent tag column on dependent rows.
func SourceColumn(parentKeyField string) string {
	return SourceColumnPrefix + parentKeyField
}

// FragmentSummary is the metadata of a fragment without its rows.
type FragmentSummary struct {
	Name        string       `json:"name"`
	Kind        FragmentKind `json:"kind"`
	Rows        int          `json:"rows"`
	Columns     int          `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	LoadMode    LoadMode     `json:"load_mode"`
	DegradedKey bool         `json:"degraded_key"`
}

// Summary returns the fragment metadata.
func (f *TableFragment) Summary() FragmentSummary {
	return FragmentSummary{
		Name:        f.Name,
		Kind:        f.Kind,
		Rows:        len(f.Rows),
		Columns:     len(f.Columns),
		PrimaryKey:  append([]string(nil), f.PrimaryKey...),
		LoadMode:    f.LoadMode,
		DegradedKey: f.DegradedKey,
	}
}
