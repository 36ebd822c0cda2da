package invoice_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Helpers
// ============================================================================

func rowsFor(items []domain.BudgetItem) []invoice.Row {
	g := invoice.Grouping{Field: domain.GroupFieldInvoiceGroup}
	return g.Evaluate(items).Rows
}

func measure(t *testing.T, m invoice.Measurer, rows []invoice.Row) invoice.Geometry {
	t.Helper()
	geom, err := m.Measure(context.Background(), &invoice.Document{Rows: rows})
	require.NoError(t, err)
	return geom
}

func assertTiles(t *testing.T, pages invoice.PageAssignment, rowCount int) {
	t.Helper()
	next := 0
	for i, p := range pages {
		assert.Equal(t, next, p.Start, "page %d starts after a gap or overlap", i)
		assert.Greater(t, p.End, p.Start, "page %d is empty", i)
		next = p.End
	}
	assert.Equal(t, rowCount, next)
}

func assertBundlesIntact(t *testing.T, rows []invoice.Row, pages invoice.PageAssignment) {
	t.Helper()
	for i := range rows {
		if invoice.StartsBundle(rows, i) {
			assert.Equal(t, pages.PageOf(i), pages.PageOf(i+1), "bundle at row %d split", i)
		}
	}
}

// ============================================================================
// Paginate
// ============================================================================

func TestPaginate_TwoGroupScenario(t *testing.T) {
	rows := rowsFor(twoGroups())
	require.Len(t, rows, 9)

	m := invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 120, StaticBottom: 150}
	budget := invoice.Budget{PageHeight: 500, PageNumberReserve: 40}

	layout, err := invoice.Paginate(rows, measure(t, m, rows), budget)
	require.NoError(t, err)

	// Phase 1 uses 190 of the 340px, the Phase 2 bundle and b2 still fit in
	// what is left, and b3 plus the 150px trailing block do not.
	assert.Equal(t, []int{8, 1}, layout.Pages.Shape())
	assertTiles(t, layout.Pages, len(rows))
	assertBundlesIntact(t, rows, layout.Pages)

	first := layout.Trace[0]
	assert.Equal(t, 340.0, first.Available)
	assert.Equal(t, 70.0, first.Needed)
}

func TestPaginate_TrailingBlockFitsOnLastGroupPage(t *testing.T) {
	rows := rowsFor(twoGroups())
	m := invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 120, StaticBottom: 80}
	budget := invoice.Budget{PageHeight: 400, PageNumberReserve: 40}

	layout, err := invoice.Paginate(rows, measure(t, m, rows), budget)
	require.NoError(t, err)

	// 240px per page: Phase 1 (190) fits, the Phase 2 bundle (70) does not
	// fit the remaining 50. Page two then holds 150px of rows plus 80px of
	// trailing block.
	assert.Equal(t, []int{5, 4}, layout.Pages.Shape())
	assert.Equal(t, []string{"# Phase 2", "b1", "b2", "b3"}, describe(layout.Pages.PageRows(rows, 1)))
}

func TestPaginate_TrailingBlockOnlyOnLastUnit(t *testing.T) {
	rows := rowsFor(twoGroups())
	m := invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 120, StaticBottom: 150}

	for _, height := range []float64{300, 400, 500, 800, 1122} {
		layout, err := invoice.Paginate(rows, measure(t, m, rows), invoice.Budget{PageHeight: height, PageNumberReserve: 40})
		require.NoError(t, err)

		reserved := 0
		for i, d := range layout.Trace {
			if d.ReservedTrailing {
				reserved++
				assert.Equal(t, len(layout.Trace)-1, i)
				assert.Equal(t, len(layout.Pages)-1, d.Page)
				assert.Equal(t, len(rows), d.Unit.End)
			}
		}
		assert.Equal(t, 1, reserved, "page height %v", height)
	}
}

func TestPaginate_ZeroRows(t *testing.T) {
	layout, err := invoice.Paginate(nil, invoice.Geometry{}, invoice.DefaultBudget())
	require.NoError(t, err)
	assert.Empty(t, layout.Pages)
	assert.Equal(t, 0, layout.Pages.RowCount())
}

func TestPaginate_OversizedRowGetsOwnPage(t *testing.T) {
	items := []domain.BudgetItem{
		item("small", "A", "", "1"),
		item("huge", "A", "", "1"),
		item("small2", "A", "", "1"),
	}
	rows := rowsFor(items)
	m := invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 100, Overrides: map[int]float64{2: 5000}}

	layout, err := invoice.Paginate(rows, measure(t, m, rows), invoice.DefaultBudget())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1, 1}, layout.Pages.Shape())
	assertTiles(t, layout.Pages, len(rows))
}

func TestPaginate_OversizedBundleStaysTogether(t *testing.T) {
	rows := rowsFor([]domain.BudgetItem{item("a", "A", "", "1"), item("b", "B", "", "1")})
	m := invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 100, Overrides: map[int]float64{3: 2000}}

	layout, err := invoice.Paginate(rows, measure(t, m, rows), invoice.DefaultBudget())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2}, layout.Pages.Shape())
	assertBundlesIntact(t, rows, layout.Pages)
}

func TestPaginate_FinalBundleWithTrailingBlock(t *testing.T) {
	rows := rowsFor([]domain.BudgetItem{
		item("a1", "A", "", "1"), item("a2", "A", "", "1"), item("b1", "B", "", "1"),
	})
	// 1122-100-40 = 982 available; A uses 110, leaving 872. The B bundle
	// needs 70 + 850 and must move as one.
	m := invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 100, StaticBottom: 850}

	layout, err := invoice.Paginate(rows, measure(t, m, rows), invoice.DefaultBudget())
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2}, layout.Pages.Shape())
	assertBundlesIntact(t, rows, layout.Pages)
}

func TestPaginate_PagePaddingRaisesReserve(t *testing.T) {
	rows := rowsFor(twoGroups())
	geom := measure(t, invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 120}, rows)
	geom.PagePaddingBottom = 60

	layout, err := invoice.Paginate(rows, geom, invoice.Budget{PageHeight: 500, PageNumberReserve: 40})
	require.NoError(t, err)
	assert.Equal(t, 320.0, layout.Trace[0].Available)
}

func TestPaginate_StaleGeometry(t *testing.T) {
	rows := rowsFor(twoGroups())
	_, err := invoice.Paginate(rows, invoice.Geometry{RowHeights: []float64{10, 10}}, invoice.DefaultBudget())
	assert.ErrorIs(t, err, invoice.ErrStaleGeometry)
}

func TestPaginate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	groups := []string{"A", "B", "C", "D", ""}

	for run := 0; run < 200; run++ {
		n := rng.Intn(40)
		items := make([]domain.BudgetItem, n)
		for i := range items {
			items[i] = item("x", groups[rng.Intn(len(groups))], "", "1")
		}
		rows := rowsFor(items)

		heights := make([]float64, len(rows))
		for i := range heights {
			heights[i] = float64(10 + rng.Intn(300))
		}
		geom := invoice.Geometry{
			RowHeights:   heights,
			StaticTop:    float64(rng.Intn(400)),
			StaticBottom: float64(rng.Intn(600)),
		}

		layout, err := invoice.Paginate(rows, geom, invoice.DefaultBudget())
		require.NoError(t, err)

		assertTiles(t, layout.Pages, len(rows))
		assertBundlesIntact(t, rows, layout.Pages)

		again, err := invoice.Paginate(rows, geom, invoice.DefaultBudget())
		require.NoError(t, err)
		assert.True(t, layout.Pages.SameShape(again.Pages))
	}
}

func TestIsLastPage(t *testing.T) {
	assert.True(t, invoice.IsLastPage(2, 3))
	assert.False(t, invoice.IsLastPage(1, 3))
	assert.False(t, invoice.IsLastPage(0, 0))
	assert.True(t, invoice.IsLastPage(0, 1))
}
