package invoice_test

import (
	"testing"

	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPager_ApplyPublishesOnlyShapeChanges(t *testing.T) {
	rows := rowsFor(twoGroups())
	m := invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 120, StaticBottom: 80}
	budget := invoice.Budget{PageHeight: 400, PageNumberReserve: 40}

	layout, err := invoice.Paginate(rows, measure(t, m, rows), budget)
	require.NoError(t, err)

	var p invoice.Pager
	assert.True(t, p.Apply(layout.Pages))
	assert.Equal(t, []int{0, 1}, p.Selected())

	require.NoError(t, p.SetCurrent(1))
	require.NoError(t, p.Toggle(0))

	// Re-measuring unchanged geometry, e.g. after a notes edit.
	again, err := invoice.Paginate(rows, measure(t, m, rows), budget)
	require.NoError(t, err)
	assert.False(t, p.Apply(again.Pages))
	assert.Equal(t, 1, p.Current())
	assert.Equal(t, []int{1}, p.Selected())

	// A taller row changes the shape and resets cursor and selection.
	m.Overrides = map[int]float64{1: 200}
	changed, err := invoice.Paginate(rows, measure(t, m, rows), budget)
	require.NoError(t, err)
	assert.True(t, p.Apply(changed.Pages))
	assert.Equal(t, 0, p.Current())
	assert.Len(t, p.Selected(), p.Count())
}

func TestPager_EmptyAssignment(t *testing.T) {
	var p invoice.Pager
	assert.True(t, p.Apply(invoice.PageAssignment{}))
	assert.False(t, p.Apply(invoice.PageAssignment{}))
	assert.Equal(t, 0, p.Count())
	assert.Empty(t, p.CurrentRows(nil))
	assert.ErrorIs(t, p.SetCurrent(0), invoice.ErrPageOutOfRange)
}

func TestPager_ToggleAndSelectAll(t *testing.T) {
	var p invoice.Pager
	p.Apply(invoice.PageAssignment{{Start: 0, End: 2}, {Start: 2, End: 3}, {Start: 3, End: 5}})

	require.NoError(t, p.Toggle(1))
	assert.Equal(t, []int{0, 2}, p.Selected())
	require.NoError(t, p.Toggle(1))
	assert.Equal(t, []int{0, 2, 1}, p.Selected())
	assert.ErrorIs(t, p.Toggle(3), invoice.ErrPageOutOfRange)

	p.SelectAll(false)
	assert.Empty(t, p.Selected())
	p.SelectAll(true)
	assert.Equal(t, []int{0, 1, 2}, p.Selected())
}

func TestExportPages(t *testing.T) {
	tests := []struct {
		name     string
		selected []int
		total    int
		want     []int
	}{
		{name: "empty selection means all", selected: nil, total: 3, want: []int{0, 1, 2}},
		{name: "sorted and deduplicated", selected: []int{2, 0, 2}, total: 3, want: []int{0, 2}},
		{name: "out of range dropped", selected: []int{5, -1, 1}, total: 3, want: []int{1}},
		{name: "no pages", selected: nil, total: 0, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, invoice.ExportPages(tt.selected, tt.total))
		})
	}
}
