package pipeline

import (
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
)

// Stage is a step of the per-object state machine.
type Stage string

const (
	StagePending      Stage = "Pending"
	StageFetching     Stage = "Fetching"
	StageFlattening   Stage = "Flattening"
	StageKeyInference Stage = "KeyInference"
	StageComplete     Stage = "Complete"
	StageFailed       Stage = "Failed"
)

// ObjectStatus is what the run summary reports per object.
type ObjectStatus string

const (
	StatusComplete             ObjectStatus = "Complete"
	StatusCompleteWithWarnings ObjectStatus = "Complete-with-warnings"
	StatusFailed               ObjectStatus = "Failed"
)

// ObjectResult summarises one object's extraction.
type ObjectResult struct {
	Object string       `json:"object"`
	Status ObjectStatus `json:"status"`

	// Stage is the last stage reached; for failures, the stage that failed.
	Stage    Stage           `json:"stage"`
	LoadMode domain.LoadMode `json:"load_mode"`

	RecordsFetched   int `json:"records_fetched"`
	Pages            int `json:"pages"`
	DependentFetches int `json:"dependent_fetches"`

	Fragments []domain.FragmentSummary `json:"fragments"`
	Warnings  []string                 `json:"warnings,omitempty"`

	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`

	WatermarkCommitted bool       `json:"watermark_committed"`
	Watermark          *time.Time `json:"watermark,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunResult is the per-object summary of one run. A run never has a single
// pass/fail outcome.
type RunResult struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Objects    []ObjectResult `json:"objects"`
}

// Counts tallies objects by status.
func (r *RunResult) Counts() map[ObjectStatus]int {
	out := make(map[ObjectStatus]int, 3)
	for _, o := range r.Objects {
		out[o.Status]++
	}
	return out
}

// Object returns the result for name.
func (r *RunResult) Object(name string) (ObjectResult, bool) {
	for _, o := range r.Objects {
		if o.Object == name {
			return o, true
		}
	}
	return ObjectResult{}, false
}

// RowCounts maps every produced table to its row count.
func (r *RunResult) RowCounts() map[string]int {
	out := make(map[string]int)
	for _, o := range r.Objects {
		for _, f := range o.Fragments {
			out[f.Name] = f.Rows
		}
	}
	return out
}
