package invoice

import (
	"errors"
	"sort"
)

// ErrPageOutOfRange is returned for a page index outside the assignment.
var ErrPageOutOfRange = errors.New("page index out of range")

// Pager holds the published page assignment together with the page cursor
// and the export selection.
type Pager struct {
	pages    PageAssignment
	selected []int
	current  int
}

// Apply publishes next unless it has the same shape as the current
// assignment. On a shape change every page becomes selected and the cursor
// returns to the first page.
func (p *Pager) Apply(next PageAssignment) bool {
	if p.pages != nil && p.pages.SameShape(next) {
		return false
	}
	p.pages = append(PageAssignment{}, next...)
	p.selected = make([]int, len(next))
	for i := range next {
		p.selected[i] = i
	}
	p.current = 0
	return true
}

// Pages returns the published assignment.
func (p *Pager) Pages() PageAssignment { return p.pages }

// Count is the number of pages.
func (p *Pager) Count() int { return len(p.pages) }

// Current is the page cursor.
func (p *Pager) Current() int { return p.current }

// SetCurrent moves the cursor.
func (p *Pager) SetCurrent(i int) error {
	if i < 0 || i >= len(p.pages) {
		return ErrPageOutOfRange
	}
	p.current = i
	return nil
}

// Toggle adds or removes page i from the export selection.
func (p *Pager) Toggle(i int) error {
	if i < 0 || i >= len(p.pages) {
		return ErrPageOutOfRange
	}
	for k, v := range p.selected {
		if v == i {
			p.selected = append(p.selected[:k:k], p.selected[k+1:]...)
			return nil
		}
	}
	p.selected = append(p.selected, i)
	return nil
}

// SelectAll selects every page, or none when checked is false.
func (p *Pager) SelectAll(checked bool) {
	p.selected = []int{}
	if !checked {
		return
	}
	for i := range p.pages {
		p.selected = append(p.selected, i)
	}
}

// Selected returns the selection in toggle order.
func (p *Pager) Selected() []int {
	return append([]int{}, p.selected...)
}

// CurrentRows returns the rows of the page under the cursor.
func (p *Pager) CurrentRows(rows []Row) []Row {
	return p.pages.PageRows(rows, p.current)
}

// ExportPages resolves a selection to the page indexes to emit: sorted,
// de-duplicated, in range, and every page when the selection is empty.
func ExportPages(selected []int, total int) []int {
	out := []int{}
	if len(selected) == 0 {
		for i := 0; i < total; i++ {
			out = append(out, i)
		}
		return out
	}
	seen := make(map[int]bool, len(selected))
	for _, i := range selected {
		if i < 0 || i >= total || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
