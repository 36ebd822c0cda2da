package domain

import "github.com/google/uuid"

// ============================================================================
// Invoice session requests
// ============================================================================

// OpenInvoiceSessionRequest opens an editing session for a project.
type OpenInvoiceSessionRequest struct {
	ProjectID uuid.UUID `json:"projectId" validate:"required"`
}

// UpdateInvoiceHeaderRequest patches header fields. Nil fields are left
// unchanged. Money fields accept "$1,234.50" style text.
type UpdateInvoiceHeaderRequest struct {
	BrandLogoURL    *string `json:"brandLogoUrl,omitempty" validate:"omitempty,max=2000000"`
	BrandName       *string `json:"brandName,omitempty" validate:"omitempty,max=200"`
	BrandTagline    *string `json:"brandTagline,omitempty" validate:"omitempty,max=200"`
	BrandAddress    *string `json:"brandAddress,omitempty" validate:"omitempty,max=500"`
	BrandPhone      *string `json:"brandPhone,omitempty" validate:"omitempty,max=50"`
	InvoiceNumber   *string `json:"invoiceNumber,omitempty" validate:"omitempty,max=50"`
	IssueDate       *string `json:"issueDate,omitempty" validate:"omitempty,max=50"`
	DueDate         *string `json:"dueDate,omitempty" validate:"omitempty,max=50"`
	ServiceDate     *string `json:"serviceDate,omitempty" validate:"omitempty,max=50"`
	ProjectTitle    *string `json:"projectTitle,omitempty" validate:"omitempty,max=200"`
	BilledTo        *string `json:"billedTo,omitempty" validate:"omitempty,max=1000"`
	CustomerSummary *string `json:"customerSummary,omitempty" validate:"omitempty,max=1000"`
	InvoiceSummary  *string `json:"invoiceSummary,omitempty" validate:"omitempty,max=1000"`
	PaymentSummary  *string `json:"paymentSummary,omitempty" validate:"omitempty,max=1000"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=20000"`
	Footer          *string `json:"footer,omitempty" validate:"omitempty,max=500"`
	TaxRate         *string `json:"taxRate,omitempty" validate:"omitempty,max=20"`
	Deposit         *string `json:"deposit,omitempty" validate:"omitempty,max=50"`
	TotalDue        *string `json:"totalDue,omitempty" validate:"omitempty,max=50"`
	// ClearTotalDue drops a total due override. It wins over TotalDue.
	ClearTotalDue bool `json:"clearTotalDue,omitempty"`
}

// SetGroupFieldRequest switches the grouping field.
type SetGroupFieldRequest struct {
	Field GroupField `json:"field" validate:"required,oneof=invoiceGroup areaGroup category"`
}

// ToggleGroupValueRequest adds or removes one group value.
type ToggleGroupValueRequest struct {
	Value string `json:"value" validate:"required,max=200"`
}

// SelectAllRequest sets or clears a whole selection.
type SelectAllRequest struct {
	Checked bool `json:"checked"`
}

// PageIndexRequest addresses one page.
type PageIndexRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

// SubmitGeometryRequest carries heights measured by a browser for one
// layout version.
type SubmitGeometryRequest struct {
	LayoutVersion     int64     `json:"layoutVersion" validate:"min=0"`
	RowHeights        []float64 `json:"rowHeights" validate:"dive,min=0"`
	StaticTop         float64   `json:"staticTop" validate:"min=0"`
	StaticBottom      float64   `json:"staticBottom" validate:"min=0"`
	PagePaddingBottom float64   `json:"pagePaddingBottom" validate:"min=0"`
}

// SnapshotKeyRequest addresses one saved snapshot.
type SnapshotKeyRequest struct {
	Key string `json:"key" validate:"required,max=500"`
}

// DeleteSnapshotsRequest deletes a batch of saved snapshots.
type DeleteSnapshotsRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required,max=500"`
}

// ============================================================================
// Invoice session responses
// ============================================================================

// MeasurementTemplateDTO is the unpaginated template a browser measures.
type MeasurementTemplateDTO struct {
	LayoutVersion int64  `json:"layoutVersion"`
	HTML          string `json:"html"`
}

// PreviewDTO is the current page fragment.
type PreviewDTO struct {
	Page      int    `json:"page"`
	PageCount int    `json:"pageCount"`
	HTML      string `json:"html"`
}

// PDFPreviewDTO identifies a rendered PDF preview.
type PDFPreviewDTO struct {
	Handle uuid.UUID `json:"handle"`
	URL    string    `json:"url"`
	Size   int       `json:"size"`
}

// DeleteSnapshotsResponse reports the outcome of a batch delete.
type DeleteSnapshotsResponse struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}
