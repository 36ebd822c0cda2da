package invoice_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupOptions(t *testing.T) {
	items := []domain.BudgetItem{
		item("x", " Phase 2 ", "", "1"),
		item("y", "Phase 1", "", "1"),
		item("z", "Phase 2", "", "1"),
		item("w", "   ", "", "1"),
	}

	assert.Equal(t, []string{"Phase 2", "Phase 1"}, invoice.GroupOptions(items, domain.GroupFieldInvoiceGroup))
	assert.Empty(t, invoice.GroupOptions(items, domain.GroupFieldAreaGroup))
}

func TestFilterItems(t *testing.T) {
	items := twoGroups()

	t.Run("empty selection keeps all items", func(t *testing.T) {
		filtered := invoice.FilterItems(items, domain.GroupFieldInvoiceGroup, nil)
		assert.Equal(t, items, filtered)
	})

	t.Run("selection keeps exactly the selected groups", func(t *testing.T) {
		filtered := invoice.FilterItems(items, domain.GroupFieldInvoiceGroup, []string{"Phase 2"})
		require.Len(t, filtered, 3)
		for _, it := range filtered {
			assert.Equal(t, "Phase 2", it.InvoiceGroup)
		}
	})

	t.Run("unknown value filters everything", func(t *testing.T) {
		assert.Empty(t, invoice.FilterItems(items, domain.GroupFieldInvoiceGroup, []string{"Nope"}))
	})
}

func TestSubtotal(t *testing.T) {
	items := []domain.BudgetItem{
		item("a", "", "", "100.25"),
		item("b", "", "", "$1,000"),
		item("c", "", "", "n/a"),
		item("d", "", "", ""),
	}
	assert.True(t, decimal.RequireFromString("1100.25").Equal(invoice.Subtotal(items)))
}

func TestDefaultGroupField(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.BudgetItem
		want  domain.GroupField
	}{
		{name: "invoice group present", items: twoGroups(), want: domain.GroupFieldInvoiceGroup},
		{name: "no invoice groups falls back to category", items: []domain.BudgetItem{item("a", "", "Plumbing", "1")}, want: domain.GroupFieldCategory},
		{name: "no items", items: nil, want: domain.GroupFieldInvoiceGroup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, invoice.DefaultGroupField(tt.items))
		})
	}
}

func TestGrouping_SetFieldResetsSelection(t *testing.T) {
	g := invoice.NewGrouping(twoGroups())
	g.Toggle("Phase 1")
	require.Equal(t, []string{"Phase 1"}, g.Values)

	assert.True(t, g.SetField(domain.GroupFieldCategory))
	assert.Empty(t, g.Values)
	assert.False(t, g.SetField(domain.GroupFieldCategory))
}

func TestGrouping_ToggleAndSelectAll(t *testing.T) {
	g := invoice.NewGrouping(twoGroups())

	g.Toggle("Phase 2")
	g.Toggle("Phase 1")
	assert.Equal(t, []string{"Phase 2", "Phase 1"}, g.Values)

	g.Toggle("Phase 2")
	assert.Equal(t, []string{"Phase 1"}, g.Values)

	g.Toggle("")
	assert.Equal(t, []string{"Phase 1"}, g.Values)

	g.SelectAll([]string{"Phase 1", "Phase 2"}, true)
	assert.Equal(t, []string{"Phase 1", "Phase 2"}, g.Values)

	g.SelectAll([]string{"Phase 1", "Phase 2"}, false)
	assert.Empty(t, g.Values)
}

func TestGrouping_Reconcile(t *testing.T) {
	g := invoice.Grouping{Field: domain.GroupFieldInvoiceGroup, Values: []string{"Phase 1", "Gone", "Phase 2"}}

	assert.True(t, g.Reconcile([]string{"Phase 2", "Phase 1"}))
	assert.Equal(t, []string{"Phase 1", "Phase 2"}, g.Values)
	assert.False(t, g.Reconcile([]string{"Phase 2", "Phase 1"}))
}

func TestGrouping_Evaluate(t *testing.T) {
	items := twoGroups()
	g := invoice.Grouping{Field: domain.GroupFieldInvoiceGroup, Values: []string{"Phase 2"}}

	res := g.Evaluate(items)

	assert.Equal(t, []string{"Phase 1", "Phase 2"}, res.Options)
	assert.Len(t, res.Filtered, 3)
	assert.True(t, decimal.NewFromInt(150).Equal(res.Subtotal))
	assert.Len(t, res.Rows, 4)
}

func TestComputeTotals(t *testing.T) {
	subtotal := decimal.NewFromInt(1000)

	t.Run("total due is subtotal minus deposit", func(t *testing.T) {
		totals := invoice.ComputeTotals(subtotal, decimal.Zero, decimal.NewFromInt(250), nil)
		assert.True(t, decimal.NewFromInt(750).Equal(totals.TotalDue))
		assert.True(t, totals.Tax.IsZero())
	})

	t.Run("tax is added before the deposit", func(t *testing.T) {
		totals := invoice.ComputeTotals(subtotal, decimal.RequireFromString("7.5"), decimal.NewFromInt(100), nil)
		assert.True(t, decimal.NewFromInt(75).Equal(totals.Tax))
		assert.True(t, decimal.NewFromInt(975).Equal(totals.TotalDue))
	})

	t.Run("override pins total due", func(t *testing.T) {
		pinned := decimal.NewFromInt(42)
		totals := invoice.ComputeTotals(subtotal, decimal.Zero, decimal.NewFromInt(250), &pinned)
		assert.True(t, pinned.Equal(totals.TotalDue))
	})
}

func TestNormalizeSummary(t *testing.T) {
	assert.Equal(t, "Acme Corp\n12 Main St", invoice.NormalizeSummary("  Acme Corp \n\n 12 Main St\r\n", "Customer"))
	assert.Equal(t, "Customer", invoice.NormalizeSummary(" \n ", "Customer"))
}
