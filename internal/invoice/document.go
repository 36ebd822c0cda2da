package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Branding is the issuer identity printed in the page header.
type Branding struct {
	LogoURL string `json:"logoUrl"`
	Name    string `json:"name"`
	Tagline string `json:"tagline"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Header holds every editable field outside the line-item table.
type Header struct {
	Brand           Branding `json:"brand"`
	InvoiceNumber   string   `json:"invoiceNumber"`
	IssueDate       string   `json:"issueDate"`
	DueDate         string   `json:"dueDate"`
	ServiceDate     string   `json:"serviceDate"`
	ProjectTitle    string   `json:"projectTitle"`
	BilledTo        string   `json:"billedTo"`
	CustomerSummary string   `json:"customerSummary"`
	InvoiceSummary  string   `json:"invoiceSummary"`
	PaymentSummary  string   `json:"paymentSummary"`
	Notes           string   `json:"notes"`
	Footer          string   `json:"footer"`
}

// Totals are the closing-page amounts.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	TaxRate  decimal.Decimal `json:"taxRate"`
	Tax      decimal.Decimal `json:"tax"`
	Deposit  decimal.Decimal `json:"deposit"`
	TotalDue decimal.Decimal `json:"totalDue"`
}

// ComputeTotals derives tax and total due. A non-nil override pins total due.
func ComputeTotals(subtotal, taxRate, deposit decimal.Decimal, override *decimal.Decimal) Totals {
	tax := subtotal.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)
	due := subtotal.Add(tax).Sub(deposit)
	if override != nil {
		due = *override
	}
	return Totals{
		Subtotal: subtotal,
		TaxRate:  taxRate,
		Tax:      tax,
		Deposit:  deposit,
		TotalDue: due,
	}
}

// Document is everything a renderer needs apart from the page assignment.
type Document struct {
	Header Header `json:"header"`
	Rows   []Row  `json:"rows"`
	Totals Totals `json:"totals"`
}

// NormalizeSummary trims each line, drops blank lines, and falls back when
// nothing remains.
func NormalizeSummary(text, fallback string) string {
	lines := NonEmptyLines(text)
	if len(lines) == 0 {
		return fallback
	}
	return strings.Join(lines, "\n")
}

// NonEmptyLines splits text into trimmed non-blank lines.
func NonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
