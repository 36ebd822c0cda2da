// Package invoice is the invoice document engine: grouping of budget items,
// the row stream every renderer consumes, and the measured page layout.
package invoice

import (
	"github.com/shopspring/decimal"
	"github.com/straye-as/invoice-api/internal/domain"
)

// Grouping is the active classification axis plus the value-level selection
// made under it. An empty Values selection means every value.
type Grouping struct {
	Field  domain.GroupField `json:"field"`
	Values []string          `json:"values"`
}

// NewGrouping starts on invoiceGroup, or on category when no item carries an
// invoice group at all.
func NewGrouping(items []domain.BudgetItem) Grouping {
	return Grouping{Field: DefaultGroupField(items), Values: []string{}}
}

// DefaultGroupField picks the initial grouping axis for a set of items.
func DefaultGroupField(items []domain.BudgetItem) domain.GroupField {
	for i := range items {
		if items[i].GroupValue(domain.GroupFieldInvoiceGroup) != "" {
			return domain.GroupFieldInvoiceGroup
		}
	}
	if len(items) == 0 {
		return domain.GroupFieldInvoiceGroup
	}
	return domain.GroupFieldCategory
}

// GroupOptions returns the distinct non-empty trimmed values of field in
// first-seen order.
func GroupOptions(items []domain.BudgetItem, field domain.GroupField) []string {
	seen := make(map[string]bool)
	options := []string{}
	for i := range items {
		v := items[i].GroupValue(field)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		options = append(options, v)
	}
	return options
}

// FilterItems keeps items whose group value is selected. An empty selection
// keeps everything.
func FilterItems(items []domain.BudgetItem, field domain.GroupField, values []string) []domain.BudgetItem {
	if len(values) == 0 {
		out := make([]domain.BudgetItem, len(items))
		copy(out, items)
		return out
	}
	selected := toSet(values)
	out := make([]domain.BudgetItem, 0, len(items))
	for i := range items {
		if selected[items[i].GroupValue(field)] {
			out = append(out, items[i])
		}
	}
	return out
}

// Subtotal sums the final cost of items; unparseable costs count as zero.
func Subtotal(items []domain.BudgetItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Amount())
	}
	return total
}

// SetField switches the classification axis and clears the value selection.
// It reports whether anything changed.
func (g *Grouping) SetField(field domain.GroupField) bool {
	if g.Field == field {
		return false
	}
	g.Field = field
	g.Values = []string{}
	return true
}

// IsSelected reports whether value is explicitly selected.
func (g *Grouping) IsSelected(value string) bool {
	for _, v := range g.Values {
		if v == value {
			return true
		}
	}
	return false
}

// Toggle adds or removes a single value, keeping selection order.
func (g *Grouping) Toggle(value string) {
	if value == "" {
		return
	}
	for i, v := range g.Values {
		if v == value {
			g.Values = append(g.Values[:i:i], g.Values[i+1:]...)
			return
		}
	}
	g.Values = append(g.Values, value)
}

// SelectAll selects every current option, or clears the selection when
// checked is false.
func (g *Grouping) SelectAll(options []string, checked bool) {
	if !checked {
		g.Values = []string{}
		return
	}
	g.Values = append([]string{}, options...)
}

// Reconcile drops selected values that are no longer among options and
// reports whether the selection shrank.
func (g *Grouping) Reconcile(options []string) bool {
	available := toSet(options)
	kept := g.Values[:0:0]
	for _, v := range g.Values {
		if available[v] {
			kept = append(kept, v)
		}
	}
	changed := len(kept) != len(g.Values)
	g.Values = kept
	return changed
}

// Result is the grouping engine output for one set of inputs.
type Result struct {
	Options  []string
	Filtered []domain.BudgetItem
	Subtotal decimal.Decimal
	Rows     []Row
}

// Evaluate runs the grouping engine and row stream over items.
func (g *Grouping) Evaluate(items []domain.BudgetItem) Result {
	options := GroupOptions(items, g.Field)
	filtered := FilterItems(items, g.Field, g.Values)
	return Result{
		Options:  options,
		Filtered: filtered,
		Subtotal: Subtotal(filtered),
		Rows:     BuildRows(items, g.Field, g.Values, options),
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
