package invoice

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrStaleGeometry is returned when measured geometry does not describe the
// current row stream, e.g. it was taken before the latest edit committed.
var ErrStaleGeometry = errors.New("geometry does not match the current rows")

const (
	// DefaultPageHeight is one A4 page at 96 dpi, in CSS pixels.
	DefaultPageHeight = 1122.0
	// DefaultPageNumberReserve is the minimum strip kept free for "Page n of N".
	DefaultPageNumberReserve = 40.0
)

// Geometry is what a measurement pass reads back from the unpaginated
// template. Heights are CSS pixels.
type Geometry struct {
	RowHeights   []float64 `json:"rowHeights"`
	StaticTop    float64   `json:"staticTop"`
	StaticBottom float64   `json:"staticBottom"`
	// PagePaddingBottom is the page container's bottom padding; the page
	// number reservation is never smaller than it.
	PagePaddingBottom float64 `json:"pagePaddingBottom,omitempty"`
}

// Measurer renders the measurement template for doc and reads back its
// geometry.
type Measurer interface {
	Measure(ctx context.Context, doc *Document) (Geometry, error)
}

// Budget is the fixed page geometry.
type Budget struct {
	PageHeight        float64
	PageNumberReserve float64
}

// DefaultBudget returns the A4 budget.
func DefaultBudget() Budget {
	return Budget{PageHeight: DefaultPageHeight, PageNumberReserve: DefaultPageNumberReserve}
}

// Available is the row space of an empty page.
func (b Budget) Available(g Geometry) float64 {
	reserve := math.Max(b.PageNumberReserve, g.PagePaddingBottom)
	return math.Max(b.PageHeight-g.StaticTop-reserve, 0)
}

// PageAssignment is the ordered list of pages, each a contiguous span of the
// row stream. Spans tile the stream from 0 with no gaps.
type PageAssignment []Span

// Shape is the per-page row count.
func (a PageAssignment) Shape() []int {
	shape := make([]int, len(a))
	for i, s := range a {
		shape[i] = s.Len()
	}
	return shape
}

// SameShape reports whether both assignments have the same page count and
// the same row count per page.
func (a PageAssignment) SameShape(b PageAssignment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Len() != b[i].Len() {
			return false
		}
	}
	return true
}

// RowCount is the number of rows covered.
func (a PageAssignment) RowCount() int {
	if len(a) == 0 {
		return 0
	}
	return a[len(a)-1].End
}

// PageRows returns the rows of page i, or nil when i is out of range or the
// assignment does not fit rows.
func (a PageAssignment) PageRows(rows []Row, i int) []Row {
	if i < 0 || i >= len(a) || a[i].End > len(rows) {
		return nil
	}
	return rows[a[i].Start:a[i].End]
}

// PageOf returns the page holding row index, or -1.
func (a PageAssignment) PageOf(row int) int {
	for i, s := range a {
		if row >= s.Start && row < s.End {
			return i
		}
	}
	return -1
}

// IsLastPage is the single predicate renderers use to decide where the
// trailing block (totals, notes, footer) goes.
func IsLastPage(pageIndex, totalPages int) bool {
	return totalPages > 0 && pageIndex == totalPages-1
}

// Decision records one fit test of the pagination walk.
type Decision struct {
	Unit             Span    `json:"unit"`
	Page             int     `json:"page"`
	Needed           float64 `json:"needed"`
	Available        float64 `json:"available"`
	ReservedTrailing bool    `json:"reservedTrailing"`
	BrokeBefore      bool    `json:"brokeBefore"`
}

// Layout is the result of one pagination pass.
type Layout struct {
	Pages PageAssignment
	Trace []Decision
}

// Paginate assigns rows to pages with a single greedy forward pass over the
// measured heights. A bundle is tested and placed as one unit; the trailing
// block height is added only to the unit holding the final row. A unit that
// does not fit even an empty page is placed alone rather than dropped.
func Paginate(rows []Row, geom Geometry, budget Budget) (Layout, error) {
	if len(geom.RowHeights) != len(rows) {
		return Layout{}, fmt.Errorf("%w: %d heights for %d rows", ErrStaleGeometry, len(geom.RowHeights), len(rows))
	}
	if len(rows) == 0 {
		return Layout{Pages: PageAssignment{}, Trace: []Decision{}}, nil
	}

	fresh := budget.Available(geom)
	available := fresh
	pages := PageAssignment{}
	trace := make([]Decision, 0, len(rows))
	pageStart := 0

	for _, unit := range Units(rows) {
		height := 0.0
		for i := unit.Start; i < unit.End; i++ {
			height += geom.RowHeights[i]
		}
		last := unit.End == len(rows)
		needed := height
		if last {
			needed += geom.StaticBottom
		}

		broke := false
		if needed > available && unit.Start > pageStart {
			pages = append(pages, Span{Start: pageStart, End: unit.Start})
			pageStart = unit.Start
			available = fresh
			broke = true
		}

		trace = append(trace, Decision{
			Unit:             unit,
			Page:             len(pages),
			Needed:           needed,
			Available:        available,
			ReservedTrailing: last,
			BrokeBefore:      broke,
		})

		for i := unit.Start; i < unit.End; i++ {
			available = math.Max(available-geom.RowHeights[i], 0)
		}
	}

	pages = append(pages, Span{Start: pageStart, End: len(rows)})
	return Layout{Pages: pages, Trace: trace}, nil
}
