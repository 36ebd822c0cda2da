// Package editor holds the state of one invoice editing session: header
// fields, grouping, the published page layout, dirty flags, the saved
// snapshot list and the owned PDF preview.
package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/format"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/snapshot"
)

// ErrInvalidGroupField is returned for a grouping field outside the known set.
var ErrInvalidGroupField = errors.New("invalid group field")

// ErrUnknownGroupValue is returned when selecting a value no item carries.
var ErrUnknownGroupValue = errors.New("unknown group value")

// Session is a single-writer editing session. It is not safe for concurrent
// use; callers serialize access.
type Session struct {
	id      uuid.UUID
	project domain.Project
	items   []domain.BudgetItem

	grouping invoice.Grouping
	result   invoice.Result

	header           invoice.Header
	taxRate          decimal.Decimal
	deposit          decimal.Decimal
	totalDueOverride *decimal.Decimal
	brandBaseline    invoice.Branding
	invoiceDirty     bool

	budget        invoice.Budget
	layoutVersion int64
	pager         invoice.Pager
	trace         []invoice.Decision

	saved           []domain.SavedInvoiceSnapshot
	savedSelected   []string
	currentFileName string

	preview *PDFPreview
	touched time.Time
}

// PDFPreview is a rendered PDF owned by the session until replaced or closed.
type PDFPreview struct {
	Handle    uuid.UUID
	Data      []byte
	CreatedAt time.Time
}

// New opens a session for project over items. Header fields are seeded from
// the project and the invoice starts dirty.
func New(id uuid.UUID, project domain.Project, items []domain.BudgetItem, budget invoice.Budget, now time.Time) *Session {
	header := DefaultHeader(&project, now)
	s := &Session{
		id:            id,
		project:       project,
		items:         items,
		grouping:      invoice.NewGrouping(items),
		header:        header,
		taxRate:       decimal.Zero,
		deposit:       decimal.Zero,
		brandBaseline: header.Brand,
		invoiceDirty:  true,
		budget:        budget,
		touched:       now,
	}
	s.evaluate()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Project returns the project the session invoices.
func (s *Session) Project() domain.Project { return s.project }

// Items returns the budget items the session was built from.
func (s *Session) Items() []domain.BudgetItem { return s.items }

// Touch records activity at now.
func (s *Session) Touch(now time.Time) { s.touched = now }

// Touched is the time of the last recorded activity.
func (s *Session) Touched() time.Time { return s.touched }

func (s *Session) evaluate() {
	s.result = s.grouping.Evaluate(s.items)
}

// contentChanged records an edit that can move measured geometry.
func (s *Session) contentChanged() {
	s.invoiceDirty = true
	s.layoutVersion++
}

// ============================================================================
// Header and totals
// ============================================================================

// Header returns the current header fields.
func (s *Session) Header() invoice.Header { return s.header }

// UpdateHeader applies a header patch. Money fields are parsed leniently.
func (s *Session) UpdateHeader(req domain.UpdateInvoiceHeaderRequest) bool {
	changed := applyHeader(&s.header, req)

	if req.TaxRate != nil {
		rate := format.ParseMoney(*req.TaxRate)
		if rate.IsNegative() {
			rate = decimal.Zero
		}
		if !rate.Equal(s.taxRate) {
			s.taxRate = rate
			changed = true
		}
	}
	if req.Deposit != nil {
		deposit := format.ParseMoney(*req.Deposit)
		if !deposit.Equal(s.deposit) {
			s.deposit = deposit
			changed = true
		}
	}
	if req.ClearTotalDue {
		if s.totalDueOverride != nil {
			s.totalDueOverride = nil
			changed = true
		}
	} else if req.TotalDue != nil {
		due := format.ParseMoney(*req.TotalDue)
		if s.totalDueOverride == nil || !s.totalDueOverride.Equal(due) {
			s.totalDueOverride = &due
			changed = true
		}
	}

	if changed {
		s.contentChanged()
	}
	return changed
}

// Totals derives the closing amounts from the filtered subtotal.
func (s *Session) Totals() invoice.Totals {
	return invoice.ComputeTotals(s.result.Subtotal, s.taxRate, s.deposit, s.totalDueOverride)
}

// HasTotalDueOverride reports whether total due is pinned.
func (s *Session) HasTotalDueOverride() bool { return s.totalDueOverride != nil }

// InvoiceDirty reports unsaved invoice changes.
func (s *Session) InvoiceDirty() bool { return s.invoiceDirty }

// BrandingDirty reports whether the brand fields differ from the baseline
// captured at open or at the last CommitBranding.
func (s *Session) BrandingDirty() bool { return s.header.Brand != s.brandBaseline }

// CommitBranding makes the current brand fields the new baseline.
func (s *Session) CommitBranding() invoice.Branding {
	s.brandBaseline = s.header.Brand
	return s.brandBaseline
}

// ============================================================================
// Grouping
// ============================================================================

// Grouping returns the active field and value selection.
func (s *Session) Grouping() invoice.Grouping {
	return invoice.Grouping{Field: s.grouping.Field, Values: append([]string{}, s.grouping.Values...)}
}

// GroupOptions are the distinct values of the active field.
func (s *Session) GroupOptions() []string { return s.result.Options }

// FilteredItems are the items the current selection keeps.
func (s *Session) FilteredItems() []domain.BudgetItem { return s.result.Filtered }

// Rows is the current row stream.
func (s *Session) Rows() []invoice.Row { return s.result.Rows }

// SetGroupField switches the grouping axis and clears the value selection.
func (s *Session) SetGroupField(field domain.GroupField) error {
	if !field.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidGroupField, field)
	}
	if s.grouping.SetField(field) {
		s.evaluate()
		s.contentChanged()
	}
	return nil
}

// ToggleGroupValue adds or removes one value from the selection. Only
// current options can be added.
func (s *Session) ToggleGroupValue(value string) error {
	if !slices.Contains(s.result.Options, value) && !slices.Contains(s.grouping.Values, value) {
		return fmt.Errorf("%w: %q", ErrUnknownGroupValue, value)
	}
	s.grouping.Toggle(value)
	s.evaluate()
	s.contentChanged()
	return nil
}

// SelectAllGroupValues selects every option, or clears the selection.
func (s *Session) SelectAllGroupValues(checked bool) {
	s.grouping.SelectAll(s.result.Options, checked)
	s.evaluate()
	s.contentChanged()
}

// ReplaceItems swaps in a fresh item list, pruning selected values that no
// longer exist.
func (s *Session) ReplaceItems(items []domain.BudgetItem) {
	s.items = items
	s.grouping.Reconcile(invoice.GroupOptions(items, s.grouping.Field))
	s.evaluate()
	s.contentChanged()
}

// ============================================================================
// Layout
// ============================================================================

// Document is the renderer input for the current state.
func (s *Session) Document() *invoice.Document {
	return &invoice.Document{
		Header: s.header,
		Rows:   s.result.Rows,
		Totals: s.Totals(),
	}
}

// LayoutVersion is bumped by every edit that can change geometry.
func (s *Session) LayoutVersion() int64 { return s.layoutVersion }

// Budget is the page geometry the session paginates against.
func (s *Session) Budget() invoice.Budget { return s.budget }

// Pages returns the published page assignment.
func (s *Session) Pages() invoice.PageAssignment { return s.pager.Pages() }

// LayoutCurrent reports whether the published assignment tiles the current
// row stream.
func (s *Session) LayoutCurrent() bool {
	return s.pager.Pages().RowCount() == len(s.result.Rows)
}

// Trace is the decision trace of the last committed layout.
func (s *Session) Trace() []invoice.Decision { return s.trace }

// Relayout measures the current document and commits the result.
func (s *Session) Relayout(ctx context.Context, m invoice.Measurer) (bool, error) {
	version := s.layoutVersion
	geom, err := m.Measure(ctx, s.Document())
	if err != nil {
		return false, fmt.Errorf("failed to measure invoice: %w", err)
	}
	return s.ApplyGeometry(version, geom)
}

// ApplyGeometry paginates with geometry measured at version. Geometry from
// an older version, or for a different row count, is refused with
// invoice.ErrStaleGeometry and the published layout is kept. It reports
// whether the page shape changed.
func (s *Session) ApplyGeometry(version int64, geom invoice.Geometry) (bool, error) {
	if version != s.layoutVersion {
		return false, fmt.Errorf("%w: version %d, current %d", invoice.ErrStaleGeometry, version, s.layoutVersion)
	}
	layout, err := invoice.Paginate(s.result.Rows, geom, s.budget)
	if err != nil {
		return false, err
	}
	s.trace = layout.Trace
	return s.pager.Apply(layout.Pages), nil
}

// CurrentPage is the page cursor.
func (s *Session) CurrentPage() int { return s.pager.Current() }

// SetCurrentPage moves the cursor.
func (s *Session) SetCurrentPage(i int) error { return s.pager.SetCurrent(i) }

// TogglePage flips one page in the export selection.
func (s *Session) TogglePage(i int) error { return s.pager.Toggle(i) }

// SelectAllPages selects every page, or none.
func (s *Session) SelectAllPages(checked bool) { s.pager.SelectAll(checked) }

// SelectedPages is the export selection.
func (s *Session) SelectedPages() []int { return s.pager.Selected() }

// ============================================================================
// Snapshots
// ============================================================================

// CurrentFileName is the name of the snapshot last saved or loaded.
func (s *Session) CurrentFileName() string { return s.currentFileName }

// MarkSaved records a successful save: the invoice becomes clean and the
// snapshot heads the known list.
func (s *Session) MarkSaved(saved domain.SavedInvoiceSnapshot) {
	s.invoiceDirty = false
	s.currentFileName = saved.Name
	list := []domain.SavedInvoiceSnapshot{saved}
	for _, existing := range s.saved {
		if existing.Key != saved.Key {
			list = append(list, existing)
		}
	}
	s.saved = list
}

// ApplySnapshot replaces the editable state with a parsed snapshot. The
// parse result is complete before this is called, so the swap is atomic.
func (s *Session) ApplySnapshot(parsed *snapshot.Parsed, name string) {
	s.header = parsed.Header
	s.taxRate = parsed.TaxRate
	s.deposit = parsed.Deposit

	if parsed.GroupField != "" {
		values := append([]string{}, parsed.GroupLabels...)
		if sameStrings(values, invoice.GroupOptions(s.items, parsed.GroupField)) {
			values = []string{}
		}
		s.grouping = invoice.Grouping{Field: parsed.GroupField, Values: values}
	}
	s.evaluate()

	s.totalDueOverride = nil
	derived := invoice.ComputeTotals(s.result.Subtotal, s.taxRate, s.deposit, nil)
	if !derived.TotalDue.Equal(parsed.TotalDue) {
		due := parsed.TotalDue
		s.totalDueOverride = &due
	}

	s.layoutVersion++
	s.invoiceDirty = false
	s.currentFileName = name
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SavedSnapshots is the known snapshot list.
func (s *Session) SavedSnapshots() []domain.SavedInvoiceSnapshot {
	return append([]domain.SavedInvoiceSnapshot{}, s.saved...)
}

// SetSavedSnapshots replaces the known list, dropping selections that no
// longer exist.
func (s *Session) SetSavedSnapshots(list []domain.SavedInvoiceSnapshot) {
	s.saved = append([]domain.SavedInvoiceSnapshot{}, list...)
	known := s.savedKeys()
	kept := []string{}
	for _, key := range s.savedSelected {
		if known[key] {
			kept = append(kept, key)
		}
	}
	s.savedSelected = kept
}

func (s *Session) savedKeys() map[string]bool {
	keys := make(map[string]bool, len(s.saved))
	for _, sv := range s.saved {
		keys[sv.Key] = true
	}
	return keys
}

// ToggleSavedSelection flips one key in the saved selection. Unknown keys
// are ignored.
func (s *Session) ToggleSavedSelection(key string) {
	for i, k := range s.savedSelected {
		if k == key {
			s.savedSelected = append(s.savedSelected[:i:i], s.savedSelected[i+1:]...)
			return
		}
	}
	if s.savedKeys()[key] {
		s.savedSelected = append(s.savedSelected, key)
	}
}

// SelectAllSaved selects every known snapshot, or none.
func (s *Session) SelectAllSaved(checked bool) {
	s.savedSelected = []string{}
	if !checked {
		return
	}
	for _, sv := range s.saved {
		s.savedSelected = append(s.savedSelected, sv.Key)
	}
}

// SelectedSaved is the saved-snapshot selection.
func (s *Session) SelectedSaved() []string {
	return append([]string{}, s.savedSelected...)
}

// RemoveSaved forgets deleted keys: from the list, the selection and the
// current file name.
func (s *Session) RemoveSaved(keys []string) {
	gone := make(map[string]bool, len(keys))
	for _, k := range keys {
		gone[k] = true
	}
	list := []domain.SavedInvoiceSnapshot{}
	for _, sv := range s.saved {
		if gone[sv.Key] {
			if sv.Name == s.currentFileName {
				s.currentFileName = ""
			}
			continue
		}
		list = append(list, sv)
	}
	s.saved = list

	selected := []string{}
	for _, k := range s.savedSelected {
		if !gone[k] {
			selected = append(selected, k)
		}
	}
	s.savedSelected = selected
}

// ============================================================================
// PDF preview
// ============================================================================

// SetPDFPreview takes ownership of a rendered PDF and returns the handle of
// the preview it replaced, if any.
func (s *Session) SetPDFPreview(data []byte, now time.Time) (*PDFPreview, *uuid.UUID) {
	var released *uuid.UUID
	if s.preview != nil {
		h := s.preview.Handle
		released = &h
	}
	s.preview = &PDFPreview{Handle: uuid.New(), Data: data, CreatedAt: now}
	return s.preview, released
}

// PDFPreview returns the owned preview, or nil.
func (s *Session) PDFPreview() *PDFPreview { return s.preview }

// ReleasePDFPreview drops the owned preview and returns its handle.
func (s *Session) ReleasePDFPreview() *uuid.UUID {
	if s.preview == nil {
		return nil
	}
	h := s.preview.Handle
	s.preview = nil
	return &h
}
