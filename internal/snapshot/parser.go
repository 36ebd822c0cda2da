package snapshot

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/format"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/render"
)

// ErrUnparseable is returned for documents that are not invoice snapshots of
// a known schema version.
var ErrUnparseable = errors.New("snapshot is not parseable")

// Parsed is the editable state recovered from a snapshot.
type Parsed struct {
	Header      invoice.Header
	Subtotal    decimal.Decimal
	TaxRate     decimal.Decimal
	Tax         decimal.Decimal
	Deposit     decimal.Decimal
	TotalDue    decimal.Decimal
	GroupLabels []string
	// GroupField is the inferred grouping field, empty when none matched.
	GroupField domain.GroupField
	PageCount  int
}

// Parse reads a serialized snapshot. items and candidates drive group field
// inference; the first candidate whose values cover every parsed group label
// wins.
func Parse(r io.Reader, items []domain.BudgetItem, candidates []domain.GroupField) (*Parsed, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	version, ok := metaContent(doc, render.VersionMetaName)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrUnparseable, render.VersionMetaName)
	}
	if version != render.SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrUnparseable, version)
	}

	pages := findAll(doc, func(n *html.Node) bool { return hasAttr(n, render.AttrPageIndex) })
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrUnparseable)
	}

	fields := map[string]*html.Node{}
	for _, n := range findAll(pages[0], func(n *html.Node) bool { return hasAttr(n, render.AttrField) }) {
		name := attr(n, render.AttrField)
		if _, seen := fields[name]; !seen {
			fields[name] = n
		}
	}
	for _, name := range render.HeaderFields {
		if fields[name] == nil {
			return nil, fmt.Errorf("%w: missing field %q", ErrUnparseable, name)
		}
	}

	out := &Parsed{PageCount: len(pages)}
	text := func(name string) string {
		if render.MultilineFields[name] {
			return strings.Join(invoice.NonEmptyLines(textContent(fields[name])), "\n")
		}
		return strings.TrimSpace(textContent(fields[name]))
	}
	out.Header = invoice.Header{
		Brand: invoice.Branding{
			LogoURL: logoURL(fields[render.FieldLogo]),
			Name:    text(render.FieldBrandName),
			Tagline: text(render.FieldBrandTagline),
			Address: text(render.FieldBrandAddress),
			Phone:   text(render.FieldBrandPhone),
		},
		InvoiceNumber:   text(render.FieldInvoiceNumber),
		IssueDate:       text(render.FieldIssueDate),
		DueDate:         text(render.FieldDueDate),
		ServiceDate:     text(render.FieldServiceDate),
		ProjectTitle:    text(render.FieldProjectTitle),
		BilledTo:        text(render.FieldBilledTo),
		CustomerSummary: text(render.FieldCustomerSummary),
		InvoiceSummary:  text(render.FieldInvoiceSummary),
		PaymentSummary:  text(render.FieldPaymentSummary),
	}

	// The trailing block lives on the last emitted page only.
	last := pages[len(pages)-1]
	if err := parseTotals(last, out); err != nil {
		return nil, err
	}
	if n := findFirst(last, func(n *html.Node) bool { return attr(n, render.AttrField) == render.FieldNotes }); n != nil {
		inner, err := innerHTML(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		out.Header.Notes = format.SanitizeNotes(inner)
	}
	if n := findFirst(last, func(n *html.Node) bool { return attr(n, render.AttrField) == render.FieldFooter }); n != nil {
		out.Header.Footer = strings.Join(invoice.NonEmptyLines(textContent(n)), "\n")
	}

	seen := map[string]bool{}
	for _, page := range pages {
		for _, row := range findAll(page, func(n *html.Node) bool { return attr(n, render.AttrRowKind) == render.RowKindGroupValue }) {
			label := strings.TrimSpace(textContent(row))
			if label == "" || seen[label] {
				continue
			}
			seen[label] = true
			out.GroupLabels = append(out.GroupLabels, label)
		}
	}
	out.GroupField = InferGroupField(out.GroupLabels, items, candidates)

	return out, nil
}

func parseTotals(page *html.Node, out *Parsed) error {
	amounts := map[string]*html.Node{}
	for _, n := range findAll(page, func(n *html.Node) bool { return hasAttr(n, render.AttrTotalKind) }) {
		amounts[attr(n, render.AttrTotalKind)] = n
	}
	for _, kind := range []string{render.TotalSubtotal, render.TotalDeposit, render.TotalDue} {
		if amounts[kind] == nil {
			return fmt.Errorf("%w: missing %s total", ErrUnparseable, kind)
		}
	}

	amount := func(n *html.Node, key string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(attr(n, key))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: bad %s on %s", ErrUnparseable, key, attr(n, render.AttrTotalKind))
		}
		return d, nil
	}

	var err error
	if out.Subtotal, err = amount(amounts[render.TotalSubtotal], render.AttrAmount); err != nil {
		return err
	}
	if out.Deposit, err = amount(amounts[render.TotalDeposit], render.AttrAmount); err != nil {
		return err
	}
	if out.TotalDue, err = amount(amounts[render.TotalDue], render.AttrAmount); err != nil {
		return err
	}
	if n := amounts[render.TotalTax]; n != nil {
		if out.Tax, err = amount(n, render.AttrAmount); err != nil {
			return err
		}
		if out.TaxRate, err = amount(n, render.AttrRate); err != nil {
			return err
		}
	}
	return nil
}

// InferGroupField returns the first candidate whose option set over items
// contains every label. No labels, or no covering candidate, yields "".
func InferGroupField(labels []string, items []domain.BudgetItem, candidates []domain.GroupField) domain.GroupField {
	if len(labels) == 0 {
		return ""
	}
	for _, field := range candidates {
		options := map[string]bool{}
		for _, o := range invoice.GroupOptions(items, field) {
			options[o] = true
		}
		covered := true
		for _, l := range labels {
			if !options[l] {
				covered = false
				break
			}
		}
		if covered {
			return field
		}
	}
	return ""
}

// ============================================================================
// DOM helpers
// ============================================================================

func attr(n *html.Node, key string) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, match); n != nil {
			return n
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func innerHTML(n *html.Node) (string, error) {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func metaContent(doc *html.Node, name string) (string, bool) {
	n := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Meta && attr(n, "name") == name
	})
	if n == nil {
		return "", false
	}
	return strings.TrimSpace(attr(n, "content")), true
}

func logoURL(field *html.Node) string {
	img := findFirst(field, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Img
	})
	return attr(img, "src")
}
