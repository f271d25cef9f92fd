package main

import (
	"bytes"
	"testing"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestPrintSummary(t *testing.T) {
	res := &pipeline.RunResult{
		RunID: "run-7",
		Objects: []pipeline.ObjectResult{
			{
				Object:         "expense",
				Status:         pipeline.StatusCompleteWithWarnings,
				LoadMode:       domain.LoadModeIncrementalAppend,
				RecordsFetched: 3,
				Fragments:      []domain.FragmentSummary{{Name: "expense", Rows: 3}, {Name: "expense__tags", Rows: 5}},
				Warnings:       []string{"expense_item: 1 parent(s) failed"},
			},
			{Object: "vehicle", Status: pipeline.StatusFailed, Error: "resource not found"},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "expense(3),expense__tags(5)")
	assert.Contains(t, out, "1 warning(s): expense_item")
	assert.Contains(t, out, "resource not found")
	assert.Contains(t, out, "Run run-7: 0 complete, 1 complete with warnings, 1 failed")
}
