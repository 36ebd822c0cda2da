package invoice_test

import (
	"testing"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describe(rows []invoice.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		if r.IsGroup() {
			out[i] = "# " + r.Label
		} else {
			out[i] = r.Item.Description
		}
	}
	return out
}

func TestBuildRows_AllGroupsInOptionOrder(t *testing.T) {
	items := twoGroups()
	options := invoice.GroupOptions(items, domain.GroupFieldInvoiceGroup)

	rows := invoice.BuildRows(items, domain.GroupFieldInvoiceGroup, nil, options)

	assert.Equal(t, []string{
		"# Phase 1", "a1", "a2", "a3", "a4",
		"# Phase 2", "b1", "b2", "b3",
	}, describe(rows))
}

func TestBuildRows_SelectionOrder(t *testing.T) {
	items := twoGroups()
	options := invoice.GroupOptions(items, domain.GroupFieldInvoiceGroup)

	rows := invoice.BuildRows(items, domain.GroupFieldInvoiceGroup, []string{"Phase 2", "Phase 1"}, options)

	assert.Equal(t, []string{
		"# Phase 2", "b1", "b2", "b3",
		"# Phase 1", "a1", "a2", "a3", "a4",
	}, describe(rows))
}

func TestBuildRows_UngroupedItemsTrailWhenAllSelected(t *testing.T) {
	items := append(twoGroups(), item("loose", "", "", "5"))
	options := invoice.GroupOptions(items, domain.GroupFieldInvoiceGroup)

	rows := invoice.BuildRows(items, domain.GroupFieldInvoiceGroup, nil, options)
	require.Len(t, rows, 10)
	assert.Equal(t, "loose", rows[9].Item.Description)

	selected := invoice.BuildRows(items, domain.GroupFieldInvoiceGroup, []string{"Phase 1"}, options)
	assert.Equal(t, []string{"# Phase 1", "a1", "a2", "a3", "a4"}, describe(selected))
}

func TestBuildRows_Completeness(t *testing.T) {
	items := append(twoGroups(), item("loose", "", "Misc", "5"))
	fields := domain.GroupFields

	for _, field := range fields {
		for _, values := range [][]string{nil, {"Phase 1"}, {"Plumbing", "Electrical"}, {"Misc"}} {
			options := invoice.GroupOptions(items, field)
			filtered := invoice.FilterItems(items, field, values)
			rows := invoice.BuildRows(items, field, values, options)

			headers := invoice.HeaderCount(rows)
			assert.Equal(t, headers+len(filtered), len(rows), "field %s values %v", field, values)
		}
	}
}

func TestBuildRows_Empty(t *testing.T) {
	assert.Empty(t, invoice.BuildRows(nil, domain.GroupFieldInvoiceGroup, nil, nil))
}

func TestUnits(t *testing.T) {
	rows := []invoice.Row{
		invoice.GroupHeaderRow("A"),
		invoice.ItemRow(&domain.BudgetItem{}),
		invoice.ItemRow(&domain.BudgetItem{}),
		invoice.GroupHeaderRow("B"),
		invoice.GroupHeaderRow("C"),
		invoice.ItemRow(&domain.BudgetItem{}),
	}

	assert.Equal(t, []invoice.Span{
		{Start: 0, End: 2},
		{Start: 2, End: 3},
		{Start: 3, End: 4},
		{Start: 4, End: 6},
	}, invoice.Units(rows))
	assert.Equal(t, []string{"A", "B", "C"}, invoice.GroupLabels(rows))
}
