// Package catalog holds the static definitions of every extractable Fidoo object.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/fidoo-extractor/internal/domain"
)

// DefaultObjects is the object list used when a run names none.
var DefaultObjects = []string{"user", "card", "transaction", "expense"}

var definitions = []domain.ObjectDefinition{
	{
		Name:       "user",
		Endpoint:   "user/get-users",
		PrimaryKey: []string{"userId"},
		Dependents: []domain.DependentDefinition{
			{
				Object: domain.ObjectDefinition{
					Name:       "user_card",
					Endpoint:   "card/get-cards",
					PrimaryKey: []string{"cardId"},
				},
				ParentField: "userId",
				JoinParam:   "userId",
			},
		},
	},
	{Name: "card", Endpoint: "card/get-cards", PrimaryKey: []string{"cardId"}},
	{
		Name:              "transaction",
		Endpoint:          "transaction/get-card-transactions",
		PrimaryKey:        []string{"transactionId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
	},
	{
		Name:              "cash_transaction",
		Endpoint:          "transaction/get-cash-transactions",
		PrimaryKey:        []string{"cashTransactionId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
	},
	{
		Name:              "mvc_transaction",
		Endpoint:          "transaction/get-mvc-transactions",
		PrimaryKey:        []string{"mvcTransactionId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
	},
	{
		Name:              "expense",
		Endpoint:          "expense/get-expenses",
		PrimaryKey:        []string{"expenseId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
		ArrayFields:       []string{"receiptUrls"},
		Dependents: []domain.DependentDefinition{
			{
				Object: domain.ObjectDefinition{
					Name:     "expense_item",
					Endpoint: "expense/get-expense-items",
				},
				ParentField: "expenseId",
				JoinParam:   "expenseId",
			},
		},
	},
	{
		Name:              "travel_report",
		Endpoint:          "travel/get-travel-reports",
		PrimaryKey:        []string{"travelReportId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
		Dependents: []domain.DependentDefinition{
			{
				Object: domain.ObjectDefinition{
					Name:     "travel_detail",
					Endpoint: "travel/get-travel-report-detail",
				},
				ParentField: "travelReportId",
				JoinParam:   "travelReportId",
			},
		},
	},
	{
		Name:              "travel_request",
		Endpoint:          "travel/get-travel-requests",
		PrimaryKey:        []string{"travelRequestId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
	},
	{
		Name:              "personal_billing",
		Endpoint:          "billing/get-personal-billings",
		PrimaryKey:        []string{"personalBillingId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
	},
	{Name: "account", Endpoint: "account/get-accounts", PrimaryKey: []string{"accountId"}},
	{Name: "cost_center", Endpoint: "settings/get-cost-centers"},
	{Name: "project", Endpoint: "settings/get-projects"},
	{Name: "account_assignment", Endpoint: "settings/get-account-assignments"},
	{Name: "accounting_category", Endpoint: "settings/get-accounting-categories"},
	{Name: "vat_breakdown", Endpoint: "settings/get-vat-breakdowns"},
	{Name: "vehicle", Endpoint: "settings/get-vehicles"},
	{
		Name:              "receipt",
		Endpoint:          "receipt/get-receipts",
		PrimaryKey:        []string{"receiptId"},
		Incremental:       true,
		IncrementalFilter: domain.DefaultIncrementalFilter,
	},
}

// Catalog looks up object definitions by name.
type Catalog struct {
	byName map[string]domain.ObjectDefinition
	order  []string
}

// New returns the built-in Fidoo catalog.
func New() *Catalog {
	return NewWith(definitions)
}

// NewWith builds a catalog over custom definitions.
func NewWith(defs []domain.ObjectDefinition) *Catalog {
	c := &Catalog{byName: make(map[string]domain.ObjectDefinition, len(defs))}
	for _, d := range defs {
		if _, dup := c.byName[d.Name]; !dup {
			c.order = append(c.order, d.Name)
		}
		c.byName[d.Name] = d
	}
	return c
}

// Get returns the named definition.
func (c *Catalog) Get(name string) (domain.ObjectDefinition, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Names returns every object name in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// All returns every definition in catalog order.
func (c *Catalog) All() []domain.ObjectDefinition {
	out := make([]domain.ObjectDefinition, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.byName[n])
	}
	return out
}

// Resolve maps names to definitions, keeping order and dropping repeats.
// An empty list resolves to DefaultObjects.
func (c *Catalog) Resolve(names []string) ([]domain.ObjectDefinition, error) {
	if len(names) == 0 {
		names = DefaultObjects
	}

	seen := make(map[string]bool, len(names))
	var unknown []string
	out := make([]domain.ObjectDefinition, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		d, ok := c.byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, d)
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown objects: %s (available: %s)",
			strings.Join(unknown, ", "), strings.Join(c.order, ", "))
	}
	return out, nil
}
