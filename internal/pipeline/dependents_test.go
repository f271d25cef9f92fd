package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/fidoo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

var expenseWithItems = domain.ObjectDefinition{
	Name:        "expense",
	Endpoint:    "expense/get-expenses",
	PrimaryKey:  []string{"expenseId"},
	Incremental: true,
	Dependents: []domain.DependentDefinition{{
		Object:      domain.ObjectDefinition{Name: "expense_item", Endpoint: "expense/get-expense-items"},
		ParentField: "expenseId",
		JoinParam:   "expenseId",
	}},
}

// itemsReader serves two items per expense, failing for the ids in fail.
func itemsReader(fail map[string]error) *MockReader {
	return &MockReader{ReadFunc: func(ctx context.Context, req fidoo.ReadRequest) (*fidoo.Page, error) {
		id, _ := req.Filters["expenseId"].(string)
		if err := fail[id]; err != nil {
			return nil, err
		}
		return &fidoo.Page{Complete: true, Records: []map[string]any{
			{"expenseItemId": id + "-1", "amount": 1},
			{"expenseItemId": id + "-2", "amount": 2},
		}}, nil
	}}
}

func drainDependent(t *testing.T, it *DependentIterator) []domain.Record {
	t.Helper()
	var out []domain.Record
	for {
		rec, err := it.Next()
		if err == iterator.Done {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

var parentRows = []domain.Row{{"expenseId": "E1"}, {"expenseId": "E2"}, {"expenseId": "E3"}}

func TestResolve_TagsChildrenWithParentKey(t *testing.T) {
	reader := itemsReader(nil)
	r := NewDependentResolver(NewFetcher(reader, 100), 1)

	iters := r.Resolve(context.Background(), expenseWithItems, parentRows, []string{"expenseId"})
	it := iters["expense_item"]
	require.NotNil(t, it)

	recs := drainDependent(t, it)
	require.Len(t, recs, 6)
	for i, want := range []string{"E1", "E1", "E2", "E2", "E3", "E3"} {
		assert.Equal(t, want, recs[i].Fields["_source_expenseId"])
		require.NotNil(t, recs[i].Parent)
		assert.Equal(t, "expense", recs[i].Parent.Object)
		assert.Equal(t, want, recs[i].Parent.KeyValue)
	}
	assert.Equal(t, 3, it.Requests())
	assert.Empty(t, it.Warnings())
	assert.Len(t, reader.requestsFor("expense/get-expense-items"), 3)
}

func TestResolve_PerParentFailureIsAWarning(t *testing.T) {
	reader := itemsReader(map[string]error{
		"E2": &fidoo.Error{Kind: fidoo.ErrRateLimited, StatusCode: 429},
	})
	r := NewDependentResolver(NewFetcher(reader, 100), 1)

	it := r.Resolve(context.Background(), expenseWithItems, parentRows, []string{"expenseId"})["expense_item"]
	recs := drainDependent(t, it)

	require.Len(t, recs, 4)
	for _, rec := range recs {
		assert.NotEqual(t, "E2", rec.Fields["_source_expenseId"])
	}
	require.Len(t, it.Warnings(), 1)
	assert.Contains(t, it.Warnings()[0], "E2")
}

func TestResolve_AuthenticationFailureIsFatal(t *testing.T) {
	reader := itemsReader(map[string]error{
		"E1": &fidoo.Error{Kind: fidoo.ErrAuthentication, StatusCode: 401},
	})
	r := NewDependentResolver(NewFetcher(reader, 100), 1)

	it := r.Resolve(context.Background(), expenseWithItems, parentRows, []string{"expenseId"})["expense_item"]
	_, err := it.Next()
	require.ErrorIs(t, err, fidoo.ErrAuthentication)
}

func TestResolve_ParallelKeepsParentOrder(t *testing.T) {
	reader := itemsReader(map[string]error{
		"E3": &fidoo.Error{Kind: fidoo.ErrNotFound, StatusCode: 404},
	})
	r := NewDependentResolver(NewFetcher(reader, 100), 4)

	it := r.Resolve(context.Background(), expenseWithItems, parentRows, []string{"expenseId"})["expense_item"]
	recs := drainDependent(t, it)

	require.Len(t, recs, 4)
	assert.Equal(t, "E1-1", recs[0].Fields["expenseItemId"])
	assert.Equal(t, "E1-2", recs[1].Fields["expenseItemId"])
	assert.Equal(t, "E2-1", recs[2].Fields["expenseItemId"])
	assert.Equal(t, "E2", recs[3].Fields["_source_expenseId"])
	assert.Len(t, it.Warnings(), 1)
	assert.Equal(t, 3, it.Requests())
}

func TestResolve_ParentWithoutJoinValue(t *testing.T) {
	reader := itemsReader(nil)
	r := NewDependentResolver(NewFetcher(reader, 100), 1)

	rows := []domain.Row{{"expenseId": "E1"}, {"expenseId": nil}}
	it := r.Resolve(context.Background(), expenseWithItems, rows, []string{"expenseId"})["expense_item"]
	recs := drainDependent(t, it)

	assert.Len(t, recs, 2)
	assert.Len(t, it.Warnings(), 1)
	assert.Equal(t, 1, it.Requests())
}

func TestResolve_NoJoinFieldOnDegradedParent(t *testing.T) {
	def := expenseWithItems
	def.Dependents = []domain.DependentDefinition{{
		Object:    domain.ObjectDefinition{Name: "expense_item", Endpoint: "expense/get-expense-items"},
		JoinParam: "expenseId",
	}}
	reader := itemsReader(nil)
	r := NewDependentResolver(NewFetcher(reader, 100), 1)

	it := r.Resolve(context.Background(), def, parentRows, []string{domain.ColumnContentHash})["expense_item"]
	recs := drainDependent(t, it)

	assert.Empty(t, recs)
	assert.Len(t, it.Warnings(), 1)
	assert.Empty(t, reader.Requests)
}

func TestDependentFetchError(t *testing.T) {
	cause := &fidoo.Error{Kind: fidoo.ErrNotFound}
	err := &DependentFetchError{Dependent: "expense_item", ParentKey: "E1", Err: cause}
	assert.True(t, errors.Is(err, fidoo.ErrNotFound))
	assert.Contains(t, err.Error(), "expense_item")
}
