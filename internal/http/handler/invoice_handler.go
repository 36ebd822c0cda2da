package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/editor"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/render"
	"github.com/straye-as/invoice-api/internal/service"
	"github.com/straye-as/invoice-api/internal/snapshot"
	"github.com/straye-as/invoice-api/internal/storage"
	"go.uber.org/zap"
)

type InvoiceHandler struct {
	invoiceService *service.InvoiceService
	logger         *zap.Logger
}

func NewInvoiceHandler(invoiceService *service.InvoiceService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		logger:         logger,
	}
}

// sessionID parses the {sessionID} route parameter, answering 400 when it
// is not a UUID
func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

// handleInvoiceError maps service errors to HTTP responses
func (h *InvoiceHandler) handleInvoiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		respondWithError(w, http.StatusNotFound, "Invoice session not found")
	case errors.Is(err, service.ErrProjectNotFound):
		respondWithError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, service.ErrPreviewNotFound):
		respondWithError(w, http.StatusNotFound, "PDF preview not found")
	case errors.Is(err, storage.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Snapshot not found")
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, invoice.ErrStaleGeometry):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAlreadySaved):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, render.ErrNothingToExport):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, snapshot.ErrUnparseable):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, invoice.ErrPageOutOfRange),
		errors.Is(err, editor.ErrInvalidGroupField),
		errors.Is(err, editor.ErrUnknownGroupValue),
		errors.Is(err, storage.ErrInvalidKey):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		h.logger.Error("Failed to "+action, zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// handleExportError is handleInvoiceError for PDF routes, where an
// unclassified error means the PDF engine failed
func (h *InvoiceHandler) handleExportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrPreviewNotFound),
		errors.Is(err, render.ErrNothingToExport),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		h.handleInvoiceError(w, err, "export invoice")
	default:
		respondWithError(w, http.StatusBadGateway, "Failed to render PDF")
	}
}

// downloadName builds a file name from the session's project title
func (h *InvoiceHandler) downloadName(ctx context.Context, id uuid.UUID, ext string) string {
	title := ""
	if state, err := h.invoiceService.Get(ctx, id); err == nil {
		title = state.Header.ProjectTitle
	}
	return "invoice-" + snapshot.Slugify(title) + ext
}

// respondState runs a state-returning operation and writes its result
func (h *InvoiceHandler) respondState(w http.ResponseWriter, state *editor.State, err error, action string) {
	if err != nil {
		h.handleInvoiceError(w, err, action)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// ============================================================================
// Session lifecycle
// ============================================================================

// Open godoc
// @Summary Open invoice session
// @Description Load a project and its budget items into a new editing session. Header fields are seeded from the project and its stored branding.
// @Tags Invoice Sessions
// @Accept json
// @Produce json
// @Param request body domain.OpenInvoiceSessionRequest true "Project to invoice"
// @Success 201 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions [post]
func (h *InvoiceHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenInvoiceSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.Open(r.Context(), &req)
	if err != nil {
		h.handleInvoiceError(w, err, "open invoice session")
		return
	}
	w.Header().Set("Location", "/api/v1/invoice-sessions/"+state.ID.String())
	respondJSON(w, http.StatusCreated, state)
}

// Get godoc
// @Summary Get invoice session
// @Description Get the current state of an editing session
// @Tags Invoice Sessions
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID} [get]
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	state, err := h.invoiceService.Get(r.Context(), id)
	h.respondState(w, state, err, "get invoice session")
}

// Close godoc
// @Summary Close invoice session
// @Description Close an editing session and release its PDF preview
// @Tags Invoice Sessions
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 204 "No Content"
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID} [delete]
func (h *InvoiceHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.invoiceService.Close(r.Context(), id); err != nil {
		h.handleInvoiceError(w, err, "close invoice session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Header and branding
// ============================================================================

// UpdateHeader godoc
// @Summary Update invoice header
// @Description Patch header fields. Omitted fields are left unchanged. Money fields accept formatted text such as "$1,234.50".
// @Tags Invoice Header
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.UpdateInvoiceHeaderRequest true "Header fields to change"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/header [patch]
func (h *InvoiceHandler) UpdateHeader(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateInvoiceHeaderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.UpdateHeader(r.Context(), id, &req)
	h.respondState(w, state, err, "update invoice header")
}

// CommitBranding godoc
// @Summary Commit invoice branding
// @Description Store the session's brand name, tagline, address, phone and logo on the project
// @Tags Invoice Header
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/branding/commit [post]
func (h *InvoiceHandler) CommitBranding(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	state, err := h.invoiceService.CommitBranding(r.Context(), id)
	h.respondState(w, state, err, "commit invoice branding")
}

// ============================================================================
// Grouping and items
// ============================================================================

// SetGroupField godoc
// @Summary Set group field
// @Description Switch the field line items are grouped by. The group selection is reset to every value.
// @Tags Invoice Grouping
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.SetGroupFieldRequest true "Group field"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/grouping [put]
func (h *InvoiceHandler) SetGroupField(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.SetGroupFieldRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.SetGroupField(r.Context(), id, &req)
	h.respondState(w, state, err, "set group field")
}

// ToggleGroupValue godoc
// @Summary Toggle group value
// @Description Add or remove one value of the current group field from the selection
// @Tags Invoice Grouping
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.ToggleGroupValueRequest true "Group value"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/grouping/toggle [post]
func (h *InvoiceHandler) ToggleGroupValue(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.ToggleGroupValueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.ToggleGroupValue(r.Context(), id, &req)
	h.respondState(w, state, err, "toggle group value")
}

// SelectAllGroupValues godoc
// @Summary Select all group values
// @Description Select every group value, or clear the selection. An empty selection shows every value.
// @Tags Invoice Grouping
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.SelectAllRequest true "Select or clear"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/grouping/select-all [post]
func (h *InvoiceHandler) SelectAllGroupValues(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.SelectAllRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.SelectAllGroupValues(r.Context(), id, &req)
	h.respondState(w, state, err, "select group values")
}

// ReloadItems godoc
// @Summary Reload budget items
// @Description Reload the project's budget items and regroup them
// @Tags Invoice Grouping
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/items/reload [post]
func (h *InvoiceHandler) ReloadItems(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	state, err := h.invoiceService.ReloadItems(r.Context(), id)
	h.respondState(w, state, err, "reload budget items")
}

// ============================================================================
// Layout and pages
// ============================================================================

// MeasurementTemplate godoc
// @Summary Get measurement template
// @Description Get the unpaginated invoice markup a browser measures, tagged with the layout version its heights must be submitted for
// @Tags Invoice Layout
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {object} domain.MeasurementTemplateDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/measurement-template [get]
func (h *InvoiceHandler) MeasurementTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	dto, err := h.invoiceService.MeasurementTemplate(r.Context(), id)
	if err != nil {
		h.handleInvoiceError(w, err, "render measurement template")
		return
	}
	respondJSON(w, http.StatusOK, dto)
}

// Measure godoc
// @Summary Measure invoice
// @Description Measure the invoice with the server-side font metrics and repaginate
// @Tags Invoice Layout
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/measure [post]
func (h *InvoiceHandler) Measure(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	state, err := h.invoiceService.Measure(r.Context(), id)
	h.respondState(w, state, err, "measure invoice")
}

// SubmitGeometry godoc
// @Summary Submit measured geometry
// @Description Repaginate with row heights measured by a browser. Heights measured for an older layout version are rejected.
// @Tags Invoice Layout
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.SubmitGeometryRequest true "Measured geometry"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/geometry [put]
func (h *InvoiceHandler) SubmitGeometry(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.SubmitGeometryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.SubmitGeometry(r.Context(), id, &req)
	h.respondState(w, state, err, "apply geometry")
}

// SetCurrentPage godoc
// @Summary Set current page
// @Description Move the preview cursor to a page
// @Tags Invoice Pages
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.PageIndexRequest true "Page index"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/pages/current [put]
func (h *InvoiceHandler) SetCurrentPage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.PageIndexRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.SetCurrentPage(r.Context(), id, *req.Index)
	h.respondState(w, state, err, "set current page")
}

// TogglePage godoc
// @Summary Toggle page selection
// @Description Add or remove a page from the export selection
// @Tags Invoice Pages
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.PageIndexRequest true "Page index"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/pages/toggle [post]
func (h *InvoiceHandler) TogglePage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.PageIndexRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.TogglePage(r.Context(), id, *req.Index)
	h.respondState(w, state, err, "toggle page")
}

// SelectAllPages godoc
// @Summary Select all pages
// @Description Select every page for export, or clear the selection. An empty selection exports every page.
// @Tags Invoice Pages
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.SelectAllRequest true "Select or clear"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/pages/select-all [post]
func (h *InvoiceHandler) SelectAllPages(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.SelectAllRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.SelectAllPages(r.Context(), id, &req)
	h.respondState(w, state, err, "select pages")
}

// ============================================================================
// Rendering and export
// ============================================================================

// Preview godoc
// @Summary Preview current page
// @Description Render the page under the cursor as an HTML fragment
// @Tags Invoice Export
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {object} domain.PreviewDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/preview [get]
func (h *InvoiceHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	dto, err := h.invoiceService.Preview(r.Context(), id)
	if err != nil {
		h.handleInvoiceError(w, err, "render preview")
		return
	}
	respondJSON(w, http.StatusOK, dto)
}

// SnapshotHTML godoc
// @Summary Download HTML snapshot
// @Description Render the selected pages as one self-contained HTML document
// @Tags Invoice Export
// @Produce text/html
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {string} string
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/snapshot.html [get]
func (h *InvoiceHandler) SnapshotHTML(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	document, err := h.invoiceService.SnapshotHTML(r.Context(), id)
	if err != nil {
		h.handleInvoiceError(w, err, "render snapshot")
		return
	}
	respondDownload(w, "text/html; charset=utf-8", h.downloadName(r.Context(), id, ".html"), []byte(document), true)
}

// ExportPDF godoc
// @Summary Export PDF
// @Description Render the selected pages as a PDF document
// @Tags Invoice Export
// @Produce application/pdf
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {file} file
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/export.pdf [get]
func (h *InvoiceHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	data, err := h.invoiceService.ExportPDF(r.Context(), id)
	if err != nil {
		h.handleExportError(w, err)
		return
	}
	respondDownload(w, "application/pdf", h.downloadName(r.Context(), id, ".pdf"), data, true)
}

// CreatePDFPreview godoc
// @Summary Create PDF preview
// @Description Render the selected pages as a PDF and register it under a fresh preview handle. The session's previous preview is released.
// @Tags Invoice Export
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 201 {object} domain.PDFPreviewDTO
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Failure 502 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/pdf-preview [post]
func (h *InvoiceHandler) CreatePDFPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	dto, err := h.invoiceService.CreatePDFPreview(r.Context(), id)
	if err != nil {
		h.handleExportError(w, err)
		return
	}
	w.Header().Set("Location", dto.URL)
	respondJSON(w, http.StatusCreated, dto)
}

// ReleasePDFPreview godoc
// @Summary Release PDF preview
// @Description Release the session's PDF preview
// @Tags Invoice Export
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 204 "No Content"
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/pdf-preview [delete]
func (h *InvoiceHandler) ReleasePDFPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.invoiceService.ReleasePDFPreview(r.Context(), id); err != nil {
		h.handleInvoiceError(w, err, "release pdf preview")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPDFPreview godoc
// @Summary Get PDF preview
// @Description Get a rendered PDF preview by handle
// @Tags Invoice Export
// @Produce application/pdf
// @Param handle path string true "Preview handle (UUID)"
// @Success 200 {file} file
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /pdf-previews/{handle} [get]
func (h *InvoiceHandler) GetPDFPreview(w http.ResponseWriter, r *http.Request) {
	handle, err := uuid.Parse(chi.URLParam(r, "handle"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid preview handle")
		return
	}
	data, err := h.invoiceService.GetPDFPreview(r.Context(), handle)
	if err != nil {
		h.handleInvoiceError(w, err, "get pdf preview")
		return
	}
	respondDownload(w, "application/pdf", "preview.pdf", data, false)
}

// ============================================================================
// Saved snapshots
// ============================================================================

// ListSnapshots godoc
// @Summary List saved snapshots
// @Description List the project's saved invoice snapshots, newest first
// @Tags Invoice Snapshots
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 200 {array} domain.SavedInvoiceSnapshot
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/snapshots [get]
func (h *InvoiceHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	list, err := h.invoiceService.ListSnapshots(r.Context(), id)
	if err != nil {
		h.handleInvoiceError(w, err, "list snapshots")
		return
	}
	if list == nil {
		list = []domain.SavedInvoiceSnapshot{}
	}
	respondJSON(w, http.StatusOK, list)
}

// SaveSnapshot godoc
// @Summary Save snapshot
// @Description Save the selected pages as an HTML snapshot. Saving an unchanged invoice again is rejected.
// @Tags Invoice Snapshots
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Success 201 {object} domain.SavedInvoiceSnapshot
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/snapshots [post]
func (h *InvoiceHandler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	saved, err := h.invoiceService.SaveSnapshot(r.Context(), id)
	if err != nil {
		h.handleInvoiceError(w, err, "save snapshot")
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

// LoadSnapshot godoc
// @Summary Load snapshot
// @Description Restore header fields, grouping and totals from a saved snapshot
// @Tags Invoice Snapshots
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.SnapshotKeyRequest true "Snapshot key"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Failure 422 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/snapshots/load [post]
func (h *InvoiceHandler) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.SnapshotKeyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.LoadSnapshot(r.Context(), id, &req)
	h.respondState(w, state, err, "load snapshot")
}

// ToggleSavedSelection godoc
// @Summary Toggle saved snapshot selection
// @Description Add or remove a saved snapshot from the delete selection
// @Tags Invoice Snapshots
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.SnapshotKeyRequest true "Snapshot key"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/snapshots/select [post]
func (h *InvoiceHandler) ToggleSavedSelection(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.SnapshotKeyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.ToggleSavedSelection(r.Context(), id, &req)
	h.respondState(w, state, err, "select snapshot")
}

// SelectAllSaved godoc
// @Summary Select all saved snapshots
// @Description Select every saved snapshot, or clear the selection
// @Tags Invoice Snapshots
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.SelectAllRequest true "Select or clear"
// @Success 200 {object} editor.State
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/snapshots/select-all [post]
func (h *InvoiceHandler) SelectAllSaved(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.SelectAllRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	state, err := h.invoiceService.SelectAllSaved(r.Context(), id, &req)
	h.respondState(w, state, err, "select snapshots")
}

// DeleteSnapshots godoc
// @Summary Delete snapshots
// @Description Delete a batch of saved snapshots. A partly failed batch answers 207 with the per-key outcome.
// @Tags Invoice Snapshots
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID" format(uuid)
// @Param request body domain.DeleteSnapshotsRequest true "Snapshot keys"
// @Success 200 {object} domain.DeleteSnapshotsResponse
// @Success 207 {object} domain.DeleteSnapshotsResponse
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Failure 403 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /invoice-sessions/{sessionID}/snapshots [delete]
func (h *InvoiceHandler) DeleteSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req domain.DeleteSnapshotsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := h.invoiceService.DeleteSnapshots(r.Context(), id, &req)
	if resp == nil {
		h.handleInvoiceError(w, err, "delete snapshots")
		return
	}
	if err != nil {
		respondJSON(w, http.StatusMultiStatus, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
