// Package render turns an invoice document and its page assignment into the
// interactive preview, the static HTML snapshot and vector PDF output.
package render

import (
	"embed"
	"errors"
	"html/template"
	"strings"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/format"
	"github.com/straye-as/invoice-api/internal/invoice"
)

// ErrNothingToExport is returned when a document has no pages to emit.
var ErrNothingToExport = errors.New("nothing to export")

//go:embed templates/*
var templateFS embed.FS

// Snapshot schema markers. The parser in the snapshot package reads these
// back, so renaming any of them requires a new SchemaVersion.
const (
	SchemaVersion     = "1"
	VersionMetaName   = "invoice-snapshot-version"
	AttrField         = "data-field"
	AttrRowKind       = "data-row-kind"
	AttrRowIndex      = "data-row-index"
	AttrTotalKind     = "data-total-kind"
	AttrAmount        = "data-amount"
	AttrRate          = "data-rate"
	AttrPageIndex     = "data-page-index"
	AttrPageCount     = "data-page-count"
	RowKindGroupValue = "group"
	RowKindItemValue  = "item"
)

// Total kinds tagged on the closing-page total lines.
const (
	TotalSubtotal = "subtotal"
	TotalDeposit  = "deposit"
	TotalTax      = "tax"
	TotalDue      = "total"
)

// Header field markers, in document order.
const (
	FieldLogo            = "logo"
	FieldBrandName       = "brandName"
	FieldBrandTagline    = "brandTagline"
	FieldBrandAddress    = "brandAddress"
	FieldBrandPhone      = "brandPhone"
	FieldInvoiceNumber   = "invoiceNumber"
	FieldIssueDate       = "issueDate"
	FieldDueDate         = "dueDate"
	FieldServiceDate     = "serviceDate"
	FieldBilledTo        = "billedTo"
	FieldProjectTitle    = "projectTitle"
	FieldCustomerSummary = "customerSummary"
	FieldInvoiceSummary  = "invoiceSummary"
	FieldPaymentSummary  = "paymentSummary"
	FieldNotes           = "notes"
	FieldFooter          = "footer"
)

// HeaderFields lists every field marker the top region carries.
var HeaderFields = []string{
	FieldLogo, FieldBrandName, FieldBrandTagline, FieldBrandAddress, FieldBrandPhone,
	FieldInvoiceNumber, FieldIssueDate, FieldDueDate, FieldServiceDate,
	FieldBilledTo, FieldProjectTitle, FieldCustomerSummary, FieldInvoiceSummary, FieldPaymentSummary,
}

// MultilineFields are rendered with preserved line breaks.
var MultilineFields = map[string]bool{
	FieldBrandAddress:    true,
	FieldBilledTo:        true,
	FieldCustomerSummary: true,
	FieldInvoiceSummary:  true,
	FieldPaymentSummary:  true,
	FieldFooter:          true,
}

type rowView struct {
	Index       int
	Group       bool
	Label       string
	Description string
	Quantity    string
	Unit        string
	UnitPrice   string
	Amount      string
}

type pageView struct {
	Header   invoice.Header
	Totals   invoice.Totals
	Rows     []rowView
	Index    int
	Count    int
	Trailing bool
}

func newRowView(r invoice.Row, index int) rowView {
	if r.IsGroup() {
		return rowView{Index: index, Group: true, Label: r.Label}
	}
	it := r.Item
	return rowView{
		Index:       index,
		Description: format.PlainText(it.Description),
		Quantity:    QuantityText(it),
		Unit:        strings.TrimSpace(it.Unit),
		UnitPrice:   format.Currency(it.UnitPrice()),
		Amount:      format.Currency(it.Amount()),
	}
}

func rowViews(rows []invoice.Row, offset int) []rowView {
	views := make([]rowView, len(rows))
	for i, r := range rows {
		views[i] = newRowView(r, offset+i)
	}
	return views
}

// QuantityText is the quantity column text; zero or unparseable is blank.
func QuantityText(it *domain.BudgetItem) string {
	q := it.Quantity.Decimal()
	if q.IsZero() {
		return ""
	}
	return q.String()
}

// ExportRows concatenates the rows of the pages an export emits.
func ExportRows(rows []invoice.Row, pages invoice.PageAssignment, selected []int) []invoice.Row {
	var out []invoice.Row
	for _, idx := range invoice.ExportPages(selected, len(pages)) {
		out = append(out, pages.PageRows(rows, idx)...)
	}
	return out
}

func logoSrc(raw string) template.URL {
	src := strings.TrimSpace(raw)
	lower := strings.ToLower(src)
	switch {
	case src == "":
		return ""
	case strings.HasPrefix(lower, "data:image/"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(src, "/"):
		return template.URL(src)
	default:
		return ""
	}
}

func parseTemplates() (*template.Template, error) {
	css, err := templateFS.ReadFile("templates/invoice.css")
	if err != nil {
		return nil, err
	}
	funcs := template.FuncMap{
		"css":      func() template.CSS { return template.CSS(css) },
		"currency": format.Currency,
		"percent":  format.Percent,
		"plain":    format.PlainAmount,
		"notes":    func(s string) template.HTML { return template.HTML(format.SanitizeNotes(s)) },
		"logoSrc":  logoSrc,
		"inc":      func(i int) int { return i + 1 },
	}
	return template.New("invoice.html").Funcs(funcs).ParseFS(templateFS, "templates/invoice.html")
}
