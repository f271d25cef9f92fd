package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/metrics"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
)

// DependentResolver fetches dependent children once per parent row.
type DependentResolver struct {
	fetcher     *Fetcher
	concurrency int
}

// NewDependentResolver creates a resolver. concurrency <= 1 fetches parents
// one at a time, on demand.
func NewDependentResolver(fetcher *Fetcher, concurrency int) *DependentResolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DependentResolver{fetcher: fetcher, concurrency: concurrency}
}

// Resolve returns one iterator per dependent of parent. parents are the
// parent's finished rows and parentKey its resolved key columns.
func (r *DependentResolver) Resolve(ctx context.Context, parent domain.ObjectDefinition, parents []domain.Row, parentKey []string) map[string]*DependentIterator {
	out := make(map[string]*DependentIterator, len(parent.Dependents))
	for _, dep := range parent.Dependents {
		out[dep.Object.Name] = r.resolveOne(ctx, parent, dep, parents, parentKey)
	}
	return out
}

func (r *DependentResolver) resolveOne(ctx context.Context, parent domain.ObjectDefinition, dep domain.DependentDefinition, parents []domain.Row, parentKey []string) *DependentIterator {
	it := &DependentIterator{
		ctx:          ctx,
		resolver:     r,
		dep:          dep,
		parentObject: parent.Name,
	}

	keyField := dep.ParentField
	if keyField == "" {
		if len(parentKey) != 1 || parentKey[0] == domain.ColumnContentHash {
			it.warnings = append(it.warnings, fmt.Sprintf(
				"dependent %s skipped: parent %s has no single-column key to join on", dep.Object.Name, parent.Name))
			it.done = true
			return it
		}
		keyField = parentKey[0]
	}
	it.keyField = keyField

	for _, row := range parents {
		v := row[keyField]
		if v == nil {
			it.warnings = append(it.warnings, fmt.Sprintf(
				"dependent %s: parent %s row has no %s", dep.Object.Name, parent.Name, keyField))
			continue
		}
		it.parents = append(it.parents, v)
	}
	return it
}

// fetchFor drains one parent's children.
func (r *DependentResolver) fetchFor(ctx context.Context, dep domain.DependentDefinition, joinParam string, value any) ([]domain.Record, error) {
	filters := map[string]any{joinParam: value}
	return r.fetcher.Fetch(ctx, dep.Object, nil, filters).drain()
}

// DependentIterator yields the tagged children of every parent in parent
// order. A parent whose fetch fails contributes no rows and one warning.
type DependentIterator struct {
	ctx          context.Context
	resolver     *DependentResolver
	dep          domain.DependentDefinition
	parentObject string
	keyField     string

	parents []any
	next    int

	// prefetched holds per-parent results when fetching in parallel.
	prefetched [][]domain.Record
	prefetchOK bool

	pending  []domain.Record
	current  any
	done     bool
	fatal    error
	warnings []string
	requests int
}

// Next returns the next child record, iterator.Done, or a run-fatal error.
func (it *DependentIterator) Next() (domain.Record, error) {
	for {
		if it.fatal != nil {
			return domain.Record{}, it.fatal
		}
		if len(it.pending) > 0 {
			rec := it.pending[0]
			it.pending = it.pending[1:]
			return it.tag(rec), nil
		}
		if it.done || it.next >= len(it.parents) {
			it.done = true
			return domain.Record{}, iterator.Done
		}
		if it.resolver.concurrency > 1 && !it.prefetchOK {
			it.prefetch()
			continue
		}

		i := it.next
		it.next++
		it.current = it.parents[i]
		if it.prefetchOK {
			it.pending = it.prefetched[i]
			it.prefetched[i] = nil
			continue
		}

		it.requests++
		recs, err := it.resolver.fetchFor(it.ctx, it.dep, it.dep.JoinParam, it.current)
		if err != nil {
			it.fail(it.current, err)
			continue
		}
		it.pending = recs
	}
}

// prefetch fetches every parent with bounded parallelism, keeping results
// in parent order.
func (it *DependentIterator) prefetch() {
	it.prefetched = make([][]domain.Record, len(it.parents))
	errs := make([]error, len(it.parents))

	g, ctx := errgroup.WithContext(it.ctx)
	g.SetLimit(it.resolver.concurrency)
	for i, v := range it.parents {
		g.Go(func() error {
			recs, err := it.resolver.fetchFor(ctx, it.dep, it.dep.JoinParam, v)
			if err != nil {
				errs[i] = err
				if isRunFatal(err) {
					return err
				}
				return nil
			}
			it.prefetched[i] = recs
			return nil
		})
	}
	it.requests += len(it.parents)

	if err := g.Wait(); err != nil {
		it.fatal = fmt.Errorf("resolving %s: %w", it.dep.Object.Name, err)
		return
	}
	for i, err := range errs {
		if err != nil {
			it.fail(it.parents[i], err)
		}
	}
	it.prefetchOK = true
}

func (it *DependentIterator) fail(parentKey any, err error) {
	if isRunFatal(err) {
		it.fatal = fmt.Errorf("resolving %s: %w", it.dep.Object.Name, err)
		return
	}
	depErr := &DependentFetchError{Dependent: it.dep.Object.Name, ParentKey: parentKey, Err: err}
	metrics.DependentFetchFailuresTotal.WithLabelValues(it.dep.Object.Name).Inc()
	log := logger.FromContext(it.ctx)
	log.Warn().
		Err(err).
		Str("dependent", it.dep.Object.Name).
		Interface("parent_key", parentKey).
		Msg("Dependent fetch failed, continuing with next parent")
	it.warnings = append(it.warnings, depErr.Error())
}

// tag links a child record to the current parent.
func (it *DependentIterator) tag(rec domain.Record) domain.Record {
	fields := make(map[string]any, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		fields[k] = v
	}
	fields[domain.SourceColumn(it.keyField)] = it.current
	return domain.Record{
		Fields: fields,
		Parent: &domain.ParentRef{
			Object:   it.parentObject,
			KeyField: it.keyField,
			KeyValue: it.current,
		},
	}
}

// KeyField is the parent column the children are joined on.
func (it *DependentIterator) KeyField() string { return it.keyField }

// Warnings returns the per-parent failures recorded so far.
func (it *DependentIterator) Warnings() []string { return it.warnings }

// Requests returns the number of parent fetches issued.
func (it *DependentIterator) Requests() int { return it.requests }
