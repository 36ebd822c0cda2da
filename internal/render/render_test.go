package render_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/render"
)

// ============================================================================
// Fixtures
// ============================================================================

func items(groups map[string]int, order ...string) []domain.BudgetItem {
	var out []domain.BudgetItem
	for _, g := range order {
		for i := 0; i < groups[g]; i++ {
			out = append(out, domain.BudgetItem{
				BaseModel:     domain.BaseModel{ID: uuid.New()},
				Description:   fmt.Sprintf("%s item %d", g, i+1),
				Quantity:      "2",
				Unit:          "hrs",
				ItemFinalCost: "150.00",
				InvoiceGroup:  g,
			})
		}
	}
	return out
}

func newDocument(list []domain.BudgetItem) *invoice.Document {
	g := invoice.NewGrouping(list)
	res := g.Evaluate(list)
	return &invoice.Document{
		Header: invoice.Header{
			Brand:           invoice.Branding{Name: "Straye Bygg", Address: "Storgata 1\n0155 Oslo", Phone: "+47 22 00 00 00"},
			InvoiceNumber:   "INV-1001",
			IssueDate:       "2026-10-01",
			DueDate:         "2026-10-31",
			ProjectTitle:    "Office refit",
			BilledTo:        "Acme AS\nPostboks 12",
			CustomerSummary: "Customer: Acme AS",
			InvoiceSummary:  "Invoice for October",
			PaymentSummary:  "Net 30",
			Notes:           "<p>Pay to <b>1234.56.78901</b></p>",
			Footer:          "Thank you",
		},
		Rows:   res.Rows,
		Totals: invoice.ComputeTotals(res.Subtotal, decimal.Zero, decimal.NewFromInt(100), nil),
	}
}

func paginate(t *testing.T, doc *invoice.Document, m invoice.Measurer) invoice.PageAssignment {
	t.Helper()
	geom, err := m.Measure(context.Background(), doc)
	require.NoError(t, err)
	layout, err := invoice.Paginate(doc.Rows, geom, invoice.DefaultBudget())
	require.NoError(t, err)
	return layout.Pages
}

var tallRows = invoice.FixedMeasurer{GroupHeight: 40, ItemHeight: 100, StaticTop: 300, StaticBottom: 200}

func newHTMLRenderer(t *testing.T) *render.HTMLRenderer {
	t.Helper()
	r, err := render.NewHTMLRenderer()
	require.NoError(t, err)
	return r
}

// ============================================================================
// Preview
// ============================================================================

func TestPreview_TrailingBlockOnlyOnLastPage(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 6, "B": 4}, "A", "B"))
	pages := paginate(t, doc, tallRows)
	require.Greater(t, len(pages), 1)
	r := newHTMLRenderer(t)

	first, err := r.Preview(doc, pages, 0)
	require.NoError(t, err)
	assert.NotContains(t, first, `data-region="bottom"`)
	assert.Contains(t, first, fmt.Sprintf("Page 1 of %d", len(pages)))
	assert.Contains(t, first, "<style>")

	last, err := r.Preview(doc, pages, len(pages)-1)
	require.NoError(t, err)
	assert.Contains(t, last, `data-region="bottom"`)
	assert.Contains(t, last, "$1,400.00")
}

func TestPreview_OutOfRange(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 2}, "A"))
	pages := paginate(t, doc, tallRows)
	_, err := newHTMLRenderer(t).Preview(doc, pages, len(pages))
	assert.ErrorIs(t, err, invoice.ErrPageOutOfRange)
}

func TestPreview_NoRows(t *testing.T) {
	doc := newDocument(nil)
	out, err := newHTMLRenderer(t).Preview(doc, nil, 0)
	require.NoError(t, err)
	assert.Contains(t, out, "Page 1 of 1")
	assert.Contains(t, out, `data-region="bottom"`)
}

func TestPreview_EscapesItemText(t *testing.T) {
	list := items(map[string]int{"A": 1}, "A")
	list[0].Description = `<script>alert(1)</script>Pipes & fittings`
	doc := newDocument(list)
	out, err := newHTMLRenderer(t).Preview(doc, paginate(t, doc, tallRows), 0)
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "Pipes &amp; fittings")
}

func TestPreview_TaxLineFollowsRate(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 1}, "A"))
	r := newHTMLRenderer(t)

	out, err := r.Preview(doc, nil, 0)
	require.NoError(t, err)
	assert.NotContains(t, out, `data-total-kind="tax"`)

	doc.Totals = invoice.ComputeTotals(decimal.NewFromInt(300), decimal.NewFromInt(25), decimal.Zero, nil)
	out, err = r.Preview(doc, nil, 0)
	require.NoError(t, err)
	assert.Contains(t, out, `data-total-kind="tax" data-rate="25.00" data-amount="75.00"`)
	assert.Contains(t, out, "Tax (25%)")
}

// ============================================================================
// Measurement template
// ============================================================================

func TestMeasurementTemplate_MarksEveryRow(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 2, "B": 1}, "A", "B"))
	out, err := newHTMLRenderer(t).MeasurementTemplate(doc, 7)
	require.NoError(t, err)

	assert.Contains(t, out, `<meta name="invoice-layout-version" content="7">`)
	assert.Contains(t, out, `data-region="top"`)
	assert.Contains(t, out, `data-region="bottom"`)
	for i := range doc.Rows {
		assert.Contains(t, out, fmt.Sprintf(`data-row-index="%d"`, i))
	}
	assert.Equal(t, 2, strings.Count(out, `data-row-kind="group"`))
}

// ============================================================================
// Snapshot
// ============================================================================

func TestSnapshot_AllPages(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 6, "B": 4}, "A", "B"))
	pages := paginate(t, doc, tallRows)
	out, err := newHTMLRenderer(t).Snapshot(doc, pages, nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, `<meta name="invoice-snapshot-version" content="1">`)
	assert.Equal(t, len(pages), strings.Count(out, `class="invoice-page`))
	assert.Equal(t, 1, strings.Count(out, `data-region="bottom"`))
	assert.Equal(t, len(doc.Rows), strings.Count(out, "data-row-index="))
	assert.Contains(t, out, "<title>Invoice INV-1001</title>")
}

func TestSnapshot_SelectedPagesCarryTrailingOnLastEmitted(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 6, "B": 4, "C": 6}, "A", "B", "C"))
	pages := paginate(t, doc, tallRows)
	require.Greater(t, len(pages), 2)

	out, err := newHTMLRenderer(t).Snapshot(doc, pages, []int{1, 0})
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, `class="invoice-page`))
	bottom := strings.Index(out, `data-region="bottom"`)
	second := strings.Index(out, `data-page-index="1"`)
	require.Positive(t, bottom)
	require.Positive(t, second)
	assert.Greater(t, bottom, second)
	assert.Equal(t, pages[0].Len()+pages[1].Len(), strings.Count(out, "data-row-index="))
	assert.Contains(t, out, fmt.Sprintf("Page 2 of %d", len(pages)))
}

func TestSnapshot_NothingToExport(t *testing.T) {
	doc := newDocument(nil)
	_, err := newHTMLRenderer(t).Snapshot(doc, nil, nil)
	assert.ErrorIs(t, err, render.ErrNothingToExport)
}

func TestExportRows(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 6, "B": 4}, "A", "B"))
	pages := paginate(t, doc, tallRows)

	assert.Len(t, render.ExportRows(doc.Rows, pages, nil), len(doc.Rows))
	assert.Equal(t, pages.PageRows(doc.Rows, 1), render.ExportRows(doc.Rows, pages, []int{1}))
	assert.Empty(t, render.ExportRows(doc.Rows, nil, nil))
}

// ============================================================================
// Flow document
// ============================================================================

func TestFlowDocument_OneTbodyPerUnit(t *testing.T) {
	doc := newDocument(items(map[string]int{"A": 3, "B": 2}, "A", "B"))
	out, err := newHTMLRenderer(t).FlowDocument(doc, doc.Rows)
	require.NoError(t, err)

	assert.Equal(t, len(invoice.Units(doc.Rows)), strings.Count(out, `<tbody class="unit">`))
	assert.Equal(t, 1, strings.Count(out, `data-region="bottom"`))
	assert.Contains(t, out, `<body class="flow">`)
}
