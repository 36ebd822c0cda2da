package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/straye-as/invoice-api/internal/invoice"
)

// HTMLRenderer renders the preview, measurement and snapshot documents from
// the embedded invoice templates.
type HTMLRenderer struct {
	tpl *template.Template
}

// NewHTMLRenderer parses the embedded templates.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse invoice templates: %w", err)
	}
	return &HTMLRenderer{tpl: tpl}, nil
}

func (r *HTMLRenderer) execute(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Preview renders the page under the cursor as an HTML fragment with its
// stylesheet. The trailing block shows only on the document's last page.
func (r *HTMLRenderer) Preview(doc *invoice.Document, pages invoice.PageAssignment, current int) (string, error) {
	count := len(pages)
	view := pageView{Header: doc.Header, Totals: doc.Totals, Index: current, Count: count}
	if count == 0 {
		view.Index, view.Count, view.Trailing = 0, 1, true
	} else {
		if current < 0 || current >= count {
			return "", invoice.ErrPageOutOfRange
		}
		view.Rows = rowViews(pages.PageRows(doc.Rows, current), pages[current].Start)
		view.Trailing = invoice.IsLastPage(current, count)
	}
	return r.execute("preview", view)
}

type measurementView struct {
	LayoutVersion int64
	Page          pageView
}

// MeasurementTemplate renders the whole document unpaginated on a single
// page. Every body row carries data-row-index and the static regions carry
// data-region="top" and data-region="bottom" so a browser can read back the
// geometry the layout engine needs.
func (r *HTMLRenderer) MeasurementTemplate(doc *invoice.Document, layoutVersion int64) (string, error) {
	return r.execute("measurement", measurementView{
		LayoutVersion: layoutVersion,
		Page: pageView{
			Header:   doc.Header,
			Totals:   doc.Totals,
			Rows:     rowViews(doc.Rows, 0),
			Index:    0,
			Count:    1,
			Trailing: true,
		},
	})
}

type snapshotView struct {
	Version string
	Title   string
	Pages   []pageView
}

// Snapshot serializes the selected pages (every page when none are selected)
// into one self-contained HTML document. Rows come straight from the page
// assignment; the trailing block goes on the last emitted page only.
func (r *HTMLRenderer) Snapshot(doc *invoice.Document, pages invoice.PageAssignment, selected []int) (string, error) {
	indexes := invoice.ExportPages(selected, len(pages))
	if len(indexes) == 0 {
		return "", ErrNothingToExport
	}

	views := make([]pageView, len(indexes))
	for i, idx := range indexes {
		views[i] = pageView{
			Header:   doc.Header,
			Totals:   doc.Totals,
			Rows:     rowViews(pages.PageRows(doc.Rows, idx), pages[idx].Start),
			Index:    idx,
			Count:    len(pages),
			Trailing: invoice.IsLastPage(i, len(indexes)),
		}
	}

	return r.execute("snapshot", snapshotView{
		Version: SchemaVersion,
		Title:   documentTitle(doc.Header),
		Pages:   views,
	})
}

type flowView struct {
	Title  string
	Header invoice.Header
	Totals invoice.Totals
	Units  [][]rowView
}

// FlowDocument renders rows as one continuous document for engines that
// paginate on their own. Each bundle is a separate tbody marked as
// unbreakable.
func (r *HTMLRenderer) FlowDocument(doc *invoice.Document, rows []invoice.Row) (string, error) {
	units := invoice.Units(rows)
	views := make([][]rowView, len(units))
	for i, u := range units {
		views[i] = rowViews(rows[u.Start:u.End], u.Start)
	}
	return r.execute("flow", flowView{
		Title:  documentTitle(doc.Header),
		Header: doc.Header,
		Totals: doc.Totals,
		Units:  views,
	})
}

func documentTitle(h invoice.Header) string {
	if h.InvoiceNumber == "" {
		return "Invoice"
	}
	return "Invoice " + h.InvoiceNumber
}
