package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/net/html"

	"github.com/straye-as/invoice-api/internal/format"
	"github.com/straye-as/invoice-api/internal/invoice"
)

// VectorRenderer produces PDF bytes for the selected pages of a document.
type VectorRenderer interface {
	RenderPDF(ctx context.Context, doc *invoice.Document, pages invoice.PageAssignment, selected []int) ([]byte, error)
}

// A4 portrait, in points.
const (
	pdfMarginX      = 36.0
	pdfMarginTop    = 30.0
	pdfMarginBottom = 42.0
	pdfCellPad      = 4.0
	pdfLineHeight   = 11.0
	pdfTableFont    = 9.0
	pdfLogoSize     = 56.0
	pdfSectionGap   = 10.0
)

var pdfColumns = [5]float64{235, 50, 50, 94, 94.28}

var pdfHeadings = [5]string{"Description", "QTY", "Unit", "Unit Price", "Amount"}

// FlowPage is one page of the vector engine's own flow layout. Rows index
// into the exported row slice. An item row too tall for a page appears on
// several consecutive pages, with Lines holding the description lines each
// page draws.
type FlowPage struct {
	Rows     []int
	Lines    map[int]LineRange
	Trailing bool
}

// LineRange is a half-open range of wrapped description lines.
type LineRange struct {
	From, To int
}

// PDFRenderer draws invoices with fpdf core fonts. It paginates with its own
// flow planner: bundles and the trailing block are kept together, but break
// positions are not taken from the measured page assignment.
type PDFRenderer struct{}

// NewPDFRenderer returns the native vector renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// RenderPDF implements VectorRenderer.
func (r *PDFRenderer) RenderPDF(ctx context.Context, doc *invoice.Document, pages invoice.PageAssignment, selected []int) ([]byte, error) {
	rows := ExportRows(doc.Rows, pages, selected)
	if len(rows) == 0 {
		return nil, ErrNothingToExport
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := newPDFDoc(doc)
	plan := d.plan(rows)
	d.pdf.SetHeaderFunc(d.drawHeader)
	d.pdf.SetFooterFunc(d.drawFooter)

	for i, page := range plan {
		d.pdf.SetAutoPageBreak(false, pdfMarginBottom)
		d.pdf.AddPage()
		if i == 0 {
			d.drawIntro()
		}
		if len(page.Rows) > 0 {
			d.drawTableHead()
			for _, idx := range page.Rows {
				if lr, ok := page.Lines[idx]; ok {
					d.drawRowLines(rows[idx], lr)
					continue
				}
				d.drawRow(rows[idx])
			}
		}
		if page.Trailing {
			d.pdf.SetAutoPageBreak(true, pdfMarginBottom)
			d.drawTrailing()
		}
	}

	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Plan exposes the flow layout for rows without drawing anything.
func (r *PDFRenderer) Plan(doc *invoice.Document, rows []invoice.Row) []FlowPage {
	return newPDFDoc(doc).plan(rows)
}

// DescriptionLines is the number of wrapped lines the description of an item
// row takes in the table.
func (r *PDFRenderer) DescriptionLines(doc *invoice.Document, row invoice.Row) int {
	return len(newPDFDoc(doc).descriptionLines(row))
}

type pdfDoc struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	doc    *invoice.Document
	logo   string
	width  float64
	height float64
}

func newPDFDoc(doc *invoice.Document) *pdfDoc {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pdfMarginX, pdfMarginTop, pdfMarginX)
	pdf.SetCellMargin(2)
	pdf.AliasNbPages("")
	pdf.SetTitle(documentTitle(doc.Header), true)
	pdf.SetCreator("invoice-api", true)
	pdf.SetFont("Helvetica", "", pdfTableFont)

	w, h := pdf.GetPageSize()
	d := &pdfDoc{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		doc:    doc,
		width:  w,
		height: h,
	}
	d.logo = d.registerLogo(doc.Header.Brand.LogoURL)
	return d
}

func (d *pdfDoc) contentWidth() float64 {
	return d.width - 2*pdfMarginX
}

func (d *pdfDoc) lines(text string, width, size float64, style string) [][]byte {
	d.pdf.SetFont("Helvetica", style, size)
	return d.pdf.SplitLines([]byte(d.tr(text)), width)
}

func (d *pdfDoc) lineCount(text string, width, size float64, style string) int {
	n := len(d.lines(text, width, size, style))
	if n == 0 {
		return 1
	}
	return n
}

// ============================================================================
// Measurement
// ============================================================================

func (d *pdfDoc) brandLines() []string {
	b := d.doc.Header.Brand
	out := []string{}
	if b.Tagline != "" {
		out = append(out, b.Tagline)
	}
	out = append(out, invoice.NonEmptyLines(b.Address)...)
	if b.Phone != "" {
		out = append(out, b.Phone)
	}
	return out
}

func (d *pdfDoc) metaLines() []string {
	h := d.doc.Header
	out := []string{"Invoice #: " + h.InvoiceNumber, "Issue date: " + h.IssueDate}
	if h.DueDate != "" {
		out = append(out, "Due date: "+h.DueDate)
	}
	if h.ServiceDate != "" {
		out = append(out, "Service date: "+h.ServiceDate)
	}
	return out
}

func (d *pdfDoc) headerHeight() float64 {
	brand := 16 + 10*float64(len(d.brandLines()))
	meta := 24 + 11*float64(len(d.metaLines()))
	h := pdfLogoSize
	if brand > h {
		h = brand
	}
	if meta > h {
		h = meta
	}
	return h + pdfSectionGap
}

func (d *pdfDoc) summaryColumns() []string {
	h := d.doc.Header
	return []string{h.CustomerSummary, h.InvoiceSummary, h.PaymentSummary}
}

func (d *pdfDoc) introHeight() float64 {
	h := d.doc.Header
	height := 11 * float64(1+len(invoice.NonEmptyLines(h.BilledTo)))
	height += pdfSectionGap
	if h.ProjectTitle != "" {
		height += 22
	}
	colWidth := d.contentWidth() / 3
	tallest := 1
	for _, text := range d.summaryColumns() {
		if n := d.lineCount(text, colWidth, 8.5, ""); n > tallest {
			tallest = n
		}
	}
	height += 11*float64(tallest) + pdfSectionGap
	return height + 6
}

const pdfTableHeadHeight = pdfLineHeight + 2*pdfCellPad

func (d *pdfDoc) rowHeight(row invoice.Row) float64 {
	if row.IsGroup() {
		return float64(d.lineCount(row.Label, d.contentWidth(), pdfTableFont, "B"))*pdfLineHeight + 2*pdfCellPad
	}
	desc := format.PlainText(row.Item.Description)
	return float64(d.lineCount(desc, pdfColumns[0], pdfTableFont, ""))*pdfLineHeight + 2*pdfCellPad
}

func (d *pdfDoc) descriptionLines(row invoice.Row) [][]byte {
	if row.IsGroup() {
		return nil
	}
	return d.lines(format.PlainText(row.Item.Description), pdfColumns[0], pdfTableFont, "")
}

func (d *pdfDoc) totalLines() []string {
	t := d.doc.Totals
	out := []string{"Subtotal"}
	if !t.TaxRate.IsZero() {
		out = append(out, "Tax")
	}
	return append(out, "Deposit received", "Total Due")
}

func (d *pdfDoc) notesLines() []string {
	return invoice.NonEmptyLines(notesText(d.doc.Header.Notes))
}

func (d *pdfDoc) trailingHeight() float64 {
	height := 20 + 16*float64(len(d.totalLines()))
	if notes := d.notesLines(); len(notes) > 0 {
		height += 14
		for _, line := range notes {
			height += 12 * float64(d.lineCount(line, d.contentWidth(), 9, ""))
		}
		height += pdfSectionGap
	}
	if footer := invoice.NonEmptyLines(d.doc.Header.Footer); len(footer) > 0 {
		height += 16 + 11*float64(len(footer))
	}
	return height
}

// plan assigns rows to flow pages: units are kept together when they fit on
// one page, and the trailing block moves to a fresh page when it does not
// fit under the last row. A unit taller than a page starts a fresh page and
// its item rows wrap onto the following pages line by line.
func (d *pdfDoc) plan(rows []invoice.Row) []FlowPage {
	if len(rows) == 0 {
		return nil
	}
	heights := make([]float64, len(rows))
	for i, row := range rows {
		heights[i] = d.rowHeight(row)
	}

	top := pdfMarginTop + d.headerHeight()
	limit := d.height - pdfMarginBottom
	y := top + d.introHeight() + pdfTableHeadHeight

	pages := []FlowPage{{}}
	newPage := func() {
		pages = append(pages, FlowPage{})
		y = top + pdfTableHeadHeight
	}
	place := func(i int) {
		cur := &pages[len(pages)-1]
		cur.Rows = append(cur.Rows, i)
	}

	for _, unit := range invoice.Units(rows) {
		h := 0.0
		for i := unit.Start; i < unit.End; i++ {
			h += heights[i]
		}
		if y+h > limit && len(pages[len(pages)-1].Rows) > 0 {
			newPage()
		}
		if y+h <= limit {
			for i := unit.Start; i < unit.End; i++ {
				place(i)
			}
			y += h
			continue
		}

		for i := unit.Start; i < unit.End; i++ {
			lines := d.descriptionLines(rows[i])
			if y+heights[i] <= limit || len(lines) <= 1 {
				if y+heights[i] > limit && len(pages[len(pages)-1].Rows) > 0 {
					newPage()
				}
				place(i)
				y += heights[i]
				continue
			}
			total := len(lines)
			for from := 0; from < total; {
				fit := int((limit - y - 2*pdfCellPad) / pdfLineHeight)
				if fit < 1 {
					newPage()
					continue
				}
				to := from + fit
				if to > total {
					to = total
				}
				cur := &pages[len(pages)-1]
				if cur.Lines == nil {
					cur.Lines = map[int]LineRange{}
				}
				cur.Lines[i] = LineRange{From: from, To: to}
				place(i)
				y += float64(to-from)*pdfLineHeight + 2*pdfCellPad
				from = to
				if from < total {
					newPage()
				}
			}
		}
	}

	if y+d.trailingHeight() > limit {
		pages = append(pages, FlowPage{})
	}
	pages[len(pages)-1].Trailing = true
	return pages
}

// ============================================================================
// Drawing
// ============================================================================

func (d *pdfDoc) registerLogo(src string) string {
	const prefix = "data:image/"
	if !strings.HasPrefix(strings.ToLower(src), prefix) {
		return ""
	}
	comma := strings.Index(src, ",")
	if comma < 0 || !strings.Contains(src[:comma], ";base64") {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(src[comma+1:])
	if err != nil {
		return ""
	}
	_, kind, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	imageType := map[string]string{"png": "PNG", "jpeg": "JPG", "gif": "GIF"}[kind]
	if imageType == "" {
		return ""
	}
	d.pdf.RegisterImageOptionsReader("logo", fpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
	if d.pdf.Err() {
		d.pdf.ClearError()
		return ""
	}
	return "logo"
}

func (d *pdfDoc) drawHeader() {
	pdf := d.pdf
	h := d.doc.Header
	x, y := pdfMarginX, pdfMarginTop

	if d.logo != "" {
		pdf.ImageOptions(d.logo, x, y, pdfLogoSize, pdfLogoSize, false, fpdf.ImageOptions{}, 0, "")
	} else {
		pdf.SetDrawColor(204, 204, 204)
		pdf.SetDashPattern([]float64{2, 2}, 0)
		pdf.Rect(x, y, pdfLogoSize, pdfLogoSize, "D")
		pdf.SetDashPattern([]float64{}, 0)
		pdf.SetFont("Helvetica", "", 7)
		pdf.SetTextColor(153, 153, 153)
		pdf.SetXY(x, y+pdfLogoSize/2-5)
		pdf.CellFormat(pdfLogoSize, 10, "Upload Logo", "", 0, "C", false, 0, "")
	}

	bx := x + pdfLogoSize + 10
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetXY(bx, y+2)
	pdf.CellFormat(200, 14, d.tr(h.Brand.Name), "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	for _, line := range d.brandLines() {
		pdf.SetX(bx)
		pdf.CellFormat(200, 10, d.tr(line), "", 2, "L", false, 0, "")
	}

	right := d.width - pdfMarginX
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(250, 51, 86)
	pdf.SetXY(right-180, y)
	pdf.CellFormat(180, 22, "INVOICE", "", 2, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range d.metaLines() {
		pdf.SetX(right - 180)
		pdf.CellFormat(180, 11, d.tr(line), "", 2, "R", false, 0, "")
	}

	pdf.SetXY(pdfMarginX, pdfMarginTop+d.headerHeight())
}

func (d *pdfDoc) drawFooter() {
	pdf := d.pdf
	pdf.SetY(-(pdfMarginBottom - 12))
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(102, 102, 102)
	pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

func (d *pdfDoc) drawIntro() {
	pdf := d.pdf
	h := d.doc.Header
	width := d.contentWidth()

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(width, 11, "Billed To:", "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range invoice.NonEmptyLines(h.BilledTo) {
		pdf.CellFormat(width, 11, d.tr(line), "", 2, "L", false, 0, "")
	}
	pdf.Ln(pdfSectionGap)

	if h.ProjectTitle != "" {
		pdf.SetFont("Helvetica", "B", 15)
		pdf.CellFormat(width, 22, d.tr(h.ProjectTitle), "", 2, "C", false, 0, "")
	}

	colWidth := width / 3
	top := pdf.GetY()
	bottom := top
	pdf.SetFont("Helvetica", "", 8.5)
	for i, text := range d.summaryColumns() {
		pdf.SetXY(pdfMarginX+float64(i)*colWidth, top)
		pdf.MultiCell(colWidth, 11, d.tr(text), "", "L", false)
		if y := pdf.GetY(); y > bottom {
			bottom = y
		}
	}
	pdf.SetXY(pdfMarginX, bottom+pdfSectionGap/2)
	pdf.SetDrawColor(204, 204, 204)
	pdf.Line(pdfMarginX, pdf.GetY(), pdfMarginX+width, pdf.GetY())
	pdf.Ln(6 + pdfSectionGap/2)
}

func (d *pdfDoc) drawTableHead() {
	pdf := d.pdf
	pdf.SetFont("Helvetica", "B", pdfTableFont)
	pdf.SetFillColor(245, 245, 245)
	pdf.SetDrawColor(221, 221, 221)
	pdf.SetX(pdfMarginX)
	for i, heading := range pdfHeadings {
		align := "L"
		if i == 1 || i >= 3 {
			align = "R"
		}
		pdf.CellFormat(pdfColumns[i], pdfTableHeadHeight, heading, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)
}

func (d *pdfDoc) drawRow(row invoice.Row) {
	pdf := d.pdf
	h := d.rowHeight(row)
	x, y := pdfMarginX, pdf.GetY()
	pdf.SetDrawColor(221, 221, 221)

	if row.IsGroup() {
		pdf.SetFillColor(250, 250, 250)
		pdf.Rect(x, y, d.contentWidth(), h, "FD")
		pdf.SetFont("Helvetica", "B", pdfTableFont)
		pdf.SetXY(x, y+pdfCellPad)
		pdf.MultiCell(d.contentWidth(), pdfLineHeight, d.tr(row.Label), "", "L", false)
		pdf.SetXY(x, y+h)
		return
	}

	view := newRowView(row, 0)
	cells := [5]string{view.Description, view.Quantity, view.Unit, view.UnitPrice, view.Amount}
	pdf.SetFont("Helvetica", "", pdfTableFont)
	cx := x
	for i, text := range cells {
		pdf.Rect(cx, y, pdfColumns[i], h, "D")
		pdf.SetXY(cx, y+pdfCellPad)
		if i == 0 {
			pdf.MultiCell(pdfColumns[i], pdfLineHeight, d.tr(text), "", "L", false)
		} else {
			align := "R"
			if i == 2 {
				align = "L"
			}
			pdf.CellFormat(pdfColumns[i], pdfLineHeight, d.tr(text), "", 0, align, false, 0, "")
		}
		cx += pdfColumns[i]
	}
	pdf.SetXY(x, y+h)
}

// drawRowLines draws one page's share of an item row split by description
// line. The figures go on the first share only.
func (d *pdfDoc) drawRowLines(row invoice.Row, lr LineRange) {
	pdf := d.pdf
	lines := d.descriptionLines(row)
	h := float64(lr.To-lr.From)*pdfLineHeight + 2*pdfCellPad
	x, y := pdfMarginX, pdf.GetY()
	pdf.SetDrawColor(221, 221, 221)

	view := newRowView(row, 0)
	cells := [5]string{"", view.Quantity, view.Unit, view.UnitPrice, view.Amount}
	if lr.From > 0 {
		cells = [5]string{}
	}
	pdf.SetFont("Helvetica", "", pdfTableFont)
	cx := x
	for i, text := range cells {
		pdf.Rect(cx, y, pdfColumns[i], h, "D")
		pdf.SetXY(cx, y+pdfCellPad)
		if i == 0 {
			for _, line := range lines[lr.From:lr.To] {
				pdf.SetX(cx)
				pdf.CellFormat(pdfColumns[i], pdfLineHeight, string(line), "", 2, "L", false, 0, "")
			}
		} else if text != "" {
			align := "R"
			if i == 2 {
				align = "L"
			}
			pdf.CellFormat(pdfColumns[i], pdfLineHeight, d.tr(text), "", 0, align, false, 0, "")
		}
		cx += pdfColumns[i]
	}
	pdf.SetXY(x, y+h)
}

func (d *pdfDoc) drawTrailing() {
	pdf := d.pdf
	t := d.doc.Totals
	width := d.contentWidth()
	labelWidth := 120.0
	valueWidth := 100.0
	lx := pdfMarginX + width - labelWidth - valueWidth

	pdf.Ln(20)
	line := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.SetX(lx)
		pdf.CellFormat(labelWidth, 16, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(valueWidth, 16, d.tr(value), "", 1, "R", false, 0, "")
	}
	line("Subtotal", format.Currency(t.Subtotal), false)
	if !t.TaxRate.IsZero() {
		line("Tax ("+format.Percent(t.TaxRate)+")", format.Currency(t.Tax), false)
	}
	line("Deposit received", format.Currency(t.Deposit), false)
	line("Total Due", format.Currency(t.TotalDue), true)

	if len(d.notesLines()) > 0 {
		pdf.Ln(pdfSectionGap)
		pdf.SetX(pdfMarginX)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(width, 14, "Payment Information", "", 1, "L", false, 0, "")
		d.writeNotes(12)
		pdf.Ln(12)
	}

	if footer := invoice.NonEmptyLines(d.doc.Header.Footer); len(footer) > 0 {
		pdf.Ln(16)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(102, 102, 102)
		for _, l := range footer {
			pdf.SetX(pdfMarginX)
			pdf.CellFormat(width, 11, d.tr(l), "", 1, "L", false, 0, "")
		}
		pdf.SetTextColor(0, 0, 0)
	}
}

// notesRun is a styled span of the sanitized notes. A run with Break set
// ends the current line.
type notesRun struct {
	Text      string
	Href      string
	Bold      bool
	Italic    bool
	Underline bool
	Break     bool
}

// notesRuns flattens sanitized notes into styled text runs for the vector
// writer.
func notesRuns(notes string) []notesRun {
	var (
		runs              []notesRun
		bold, ital, under int
		href              string
	)
	lineBreak := func() {
		if len(runs) > 0 && !runs[len(runs)-1].Break {
			runs = append(runs, notesRun{Break: true})
		}
	}
	z := html.NewTokenizer(strings.NewReader(format.SanitizeNotes(notes)))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		switch tt {
		case html.TextToken:
			if strings.TrimSpace(tok.Data) == "" {
				continue
			}
			runs = append(runs, notesRun{
				Text:      tok.Data,
				Href:      href,
				Bold:      bold > 0,
				Italic:    ital > 0,
				Underline: under > 0,
			})
		case html.StartTagToken, html.SelfClosingTagToken:
			switch tok.Data {
			case "b", "strong":
				bold++
			case "i", "em":
				ital++
			case "u":
				under++
			case "br":
				runs = append(runs, notesRun{Break: true})
			case "li":
				lineBreak()
				runs = append(runs, notesRun{Text: "- "})
			case "a":
				for _, a := range tok.Attr {
					if a.Key == "href" {
						href = a.Val
					}
				}
			}
		case html.EndTagToken:
			switch tok.Data {
			case "b", "strong":
				bold--
			case "i", "em":
				ital--
			case "u":
				under--
			case "a":
				href = ""
			case "p", "div", "li":
				lineBreak()
			}
		}
	}
	for len(runs) > 0 && runs[len(runs)-1].Break {
		runs = runs[:len(runs)-1]
	}
	return runs
}

// notesText renders the runs as plain lines, for height estimates.
func notesText(notes string) string {
	var b strings.Builder
	for _, run := range notesRuns(notes) {
		if run.Break {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(run.Text)
	}
	return b.String()
}

func (d *pdfDoc) writeNotes(lineHeight float64) {
	pdf := d.pdf
	for _, run := range notesRuns(d.doc.Header.Notes) {
		if run.Break {
			pdf.Ln(lineHeight)
			continue
		}
		style := ""
		if run.Bold {
			style += "B"
		}
		if run.Italic {
			style += "I"
		}
		if run.Underline || run.Href != "" {
			style += "U"
		}
		pdf.SetFont("Helvetica", style, 9)
		if run.Href != "" {
			pdf.WriteLinkString(lineHeight, d.tr(run.Text), run.Href)
			continue
		}
		pdf.Write(lineHeight, d.tr(run.Text))
	}
	pdf.SetFont("Helvetica", "", 9)
}
