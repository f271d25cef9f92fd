package bigquery

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	extractorStateTable = "extractor_state"
	extractionRunsTable = "extraction_runs"
)

// Dataset identifies the BigQuery dataset the extractor writes to.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the backquoted fully-qualified name of table.
func (d Dataset) Table(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, table)
}

var invalidColumnChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// ColumnName maps an output column onto BigQuery's column naming rules.
func ColumnName(name string) string {
	out := invalidColumnChars.ReplaceAllString(name, "_")
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 2000
	msg := strings.TrimSpace(err.Error())
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
