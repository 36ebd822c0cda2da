package invoice

import "github.com/straye-as/invoice-api/internal/domain"

// RowKind discriminates the two kinds of invoice body rows.
type RowKind string

const (
	RowKindGroup RowKind = "group"
	RowKindItem  RowKind = "item"
)

// Row is either a group header carrying Label or an item row carrying Item.
type Row struct {
	Kind  RowKind            `json:"kind"`
	Label string             `json:"label,omitempty"`
	Item  *domain.BudgetItem `json:"item,omitempty"`
}

// GroupHeaderRow builds a header row.
func GroupHeaderRow(label string) Row {
	return Row{Kind: RowKindGroup, Label: label}
}

// ItemRow builds an item row.
func ItemRow(item *domain.BudgetItem) Row {
	return Row{Kind: RowKindItem, Item: item}
}

func (r Row) IsGroup() bool { return r.Kind == RowKindGroup }

// BuildRows produces the row stream: for each group value (the selection in
// selection order, or every option when nothing is selected) one header row
// followed by that group's items in their original order. With an empty
// selection, items without a group value trail the grouped rows unheaded.
func BuildRows(items []domain.BudgetItem, field domain.GroupField, values, options []string) []Row {
	order := values
	if len(order) == 0 {
		order = options
	}

	rows := make([]Row, 0, len(items)+len(order))
	emitted := make(map[string]bool, len(order))
	for _, value := range order {
		if emitted[value] {
			continue
		}
		emitted[value] = true
		if value != "" {
			rows = append(rows, GroupHeaderRow(value))
		}
		for i := range items {
			if items[i].GroupValue(field) == value {
				rows = append(rows, ItemRow(&items[i]))
			}
		}
	}

	if len(values) == 0 && !emitted[""] {
		for i := range items {
			if items[i].GroupValue(field) == "" {
				rows = append(rows, ItemRow(&items[i]))
			}
		}
	}
	return rows
}

// StartsBundle reports whether rows[i] is a group header immediately
// followed by an item row.
func StartsBundle(rows []Row, i int) bool {
	return i >= 0 && i+1 < len(rows) && rows[i].IsGroup() && rows[i+1].Kind == RowKindItem
}

// Span is a half-open range [Start, End) of row stream indexes.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len is the number of rows in the span.
func (s Span) Len() int { return s.End - s.Start }

// Units splits the row stream into its atomic runs: a bundle (header plus its
// first item) or a single row. No page break may fall inside a unit.
func Units(rows []Row) []Span {
	units := make([]Span, 0, len(rows))
	for i := 0; i < len(rows); {
		end := i + 1
		if StartsBundle(rows, i) {
			end = i + 2
		}
		units = append(units, Span{Start: i, End: end})
		i = end
	}
	return units
}

// HeaderCount counts group header rows.
func HeaderCount(rows []Row) int {
	n := 0
	for _, r := range rows {
		if r.IsGroup() {
			n++
		}
	}
	return n
}

// GroupLabels lists header labels in stream order.
func GroupLabels(rows []Row) []string {
	labels := []string{}
	for _, r := range rows {
		if r.IsGroup() {
			labels = append(labels, r.Label)
		}
	}
	return labels
}
