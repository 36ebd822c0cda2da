package editor

import (
	"github.com/google/uuid"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/format"
	"github.com/straye-as/invoice-api/internal/invoice"
)

// TotalsState are the closing amounts as fixed two-decimal strings.
type TotalsState struct {
	Subtotal         string `json:"subtotal"`
	TaxRate          string `json:"taxRate"`
	Tax              string `json:"tax"`
	Deposit          string `json:"deposit"`
	TotalDue         string `json:"totalDue"`
	TotalDueOverride bool   `json:"totalDueOverride"`
}

// State is the externally visible state of a session.
type State struct {
	ID              uuid.UUID                     `json:"id"`
	ProjectID       uuid.UUID                     `json:"projectId"`
	Header          invoice.Header                `json:"header"`
	GroupField      domain.GroupField             `json:"groupField"`
	GroupValues     []string                      `json:"groupValues"`
	GroupOptions    []string                      `json:"groupOptions"`
	ItemCount       int                           `json:"itemCount"`
	RowCount        int                           `json:"rowCount"`
	Totals          TotalsState                   `json:"totals"`
	LayoutVersion   int64                         `json:"layoutVersion"`
	LayoutCurrent   bool                          `json:"layoutCurrent"`
	PageShape       []int                         `json:"pageShape"`
	PageCount       int                           `json:"pageCount"`
	CurrentPage     int                           `json:"currentPage"`
	SelectedPages   []int                         `json:"selectedPages"`
	InvoiceDirty    bool                          `json:"invoiceDirty"`
	BrandingDirty   bool                          `json:"brandingDirty"`
	CurrentFileName string                        `json:"currentFileName,omitempty"`
	SavedInvoices   []domain.SavedInvoiceSnapshot `json:"savedInvoices"`
	SelectedSaved   []string                      `json:"selectedSaved"`
	PDFPreview      *uuid.UUID                    `json:"pdfPreview,omitempty"`
}

// State snapshots the session for API responses.
func (s *Session) State() State {
	t := s.Totals()
	g := s.Grouping()
	st := State{
		ID:           s.id,
		ProjectID:    s.project.ID,
		Header:       s.header,
		GroupField:   g.Field,
		GroupValues:  g.Values,
		GroupOptions: append([]string{}, s.result.Options...),
		ItemCount:    len(s.items),
		RowCount:     len(s.result.Rows),
		Totals: TotalsState{
			Subtotal:         format.PlainAmount(t.Subtotal),
			TaxRate:          format.PlainAmount(t.TaxRate),
			Tax:              format.PlainAmount(t.Tax),
			Deposit:          format.PlainAmount(t.Deposit),
			TotalDue:         format.PlainAmount(t.TotalDue),
			TotalDueOverride: s.totalDueOverride != nil,
		},
		LayoutVersion:   s.layoutVersion,
		LayoutCurrent:   s.LayoutCurrent(),
		PageShape:       s.pager.Pages().Shape(),
		PageCount:       s.pager.Count(),
		CurrentPage:     s.pager.Current(),
		SelectedPages:   s.pager.Selected(),
		InvoiceDirty:    s.invoiceDirty,
		BrandingDirty:   s.BrandingDirty(),
		CurrentFileName: s.currentFileName,
		SavedInvoices:   s.SavedSnapshots(),
		SelectedSaved:   s.SelectedSaved(),
	}
	if s.preview != nil {
		h := s.preview.Handle
		st.PDFPreview = &h
	}
	return st
}
