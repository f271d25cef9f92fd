// Package pipeline is the extraction engine: it fetches Fidoo objects,
// flattens their nested arrays, infers keys, resolves dependents and hands
// finished table fragments to a sink.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
)

// PipelineStep represents a single stage of one object's extraction.
type PipelineStep interface {
	Execute(ctx context.Context, state *ObjectState) error
}

// ObjectState holds the shared state across the steps of one object.
type ObjectState struct {
	RunID string
	Def   domain.ObjectDefinition
	Stage Stage

	Plan FetchPlan

	Fetched          int
	Pages            int
	DependentFetches int

	Tables     *objectTables
	Dependents []*objectTables

	// Fragments are owned by the state until the handoff step passes them on.
	Fragments []*domain.TableFragment
	Summaries []domain.FragmentSummary

	Warnings  []string
	Committed bool
}

// NewObjectState returns the Pending state for def.
func NewObjectState(runID string, def domain.ObjectDefinition) *ObjectState {
	return &ObjectState{
		RunID:  runID,
		Def:    def,
		Stage:  StagePending,
		Tables: newObjectTables(def, def.Name, domain.FragmentMain),
	}
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially. On error the state keeps the stage
// that failed.
func (p *Pipeline) Execute(ctx context.Context, state *ObjectState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) canceled: %w", i+1, state.Stage, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, state.Stage, err)
		}
	}
	return nil
}
