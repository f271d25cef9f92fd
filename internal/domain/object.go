package domain

import "strings"

// DefaultIncrementalFilter is the request filter carrying the watermark when
// an object does not name its own.
const DefaultIncrementalFilter = "lastModifiedFrom"

// ObjectDefinition is the static description of one extractable entity.
type ObjectDefinition struct {
	Name     string
	Endpoint string

	// PrimaryKey is the explicitly configured key. Empty means infer.
	PrimaryKey []string

	// Incremental marks transactional objects that accept a watermark filter.
	Incremental       bool
	IncrementalFilter string

	// ArrayFields are array-valued fields known to belong to the object.
	// Their sub-tables are emitted even when a run observes none of them.
	ArrayFields []string

	Dependents []DependentDefinition
}

// DependentDefinition describes a child object fetched once per parent record.
type DependentDefinition struct {
	Object ObjectDefinition

	// ParentField is the parent column whose value is sent as JoinParam.
	// Empty means the parent's resolved single-column key.
	ParentField string

	// JoinParam is the request filter name the child endpoint expects.
	JoinParam string
}

// WatermarkFilter returns the filter name used to pass the watermark.
func (d ObjectDefinition) WatermarkFilter() string {
	if d.IncrementalFilter != "" {
		return d.IncrementalFilter
	}
	return DefaultIncrementalFilter
}

// IDField returns the conventional identifier column, e.g. cash_transaction -> cashTransactionId.
func (d ObjectDefinition) IDField() string {
	return CamelCase(d.Name) + "Id"
}

// CamelCase converts snake_case object names to lowerCamelCase.
func CamelCase(name string) string {
	parts := strings.Split(name, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
