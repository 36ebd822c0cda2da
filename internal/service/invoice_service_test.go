package service_test

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/render"
	"github.com/straye-as/invoice-api/internal/repository"
	"github.com/straye-as/invoice-api/internal/service"
	"github.com/straye-as/invoice-api/internal/snapshot"
	"github.com/straye-as/invoice-api/internal/storage"
	"github.com/straye-as/invoice-api/internal/testutil"
)

// smallPage fits eight of the seeded rows on the first page.
var smallPage = invoice.Budget{PageHeight: 500, PageNumberReserve: 40}

var rowsOnly = invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40, StaticTop: 120, StaticBottom: 150}

type fixture struct {
	svc     *service.InvoiceService
	db      *gorm.DB
	project *domain.Project
	clock   *time.Time
}

func strPtr(s string) *string { return &s }

// switchMeasurer measures like rowsOnly until fail is set.
type switchMeasurer struct {
	fail atomic.Bool
}

func (m *switchMeasurer) Measure(ctx context.Context, doc *invoice.Document) (invoice.Geometry, error) {
	if m.fail.Load() {
		return invoice.Geometry{}, context.Canceled
	}
	return rowsOnly.Measure(ctx, doc)
}

// gatedPDF blocks every render until release is closed.
type gatedPDF struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedPDF() *gatedPDF {
	return &gatedPDF{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedPDF) RenderPDF(ctx context.Context, doc *invoice.Document, pages invoice.PageAssignment, selected []int) ([]byte, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return []byte("%PDF-1.4"), nil
	}
}

func setupInvoiceService(t *testing.T) *fixture {
	t.Helper()
	return setupInvoiceServiceWith(t, rowsOnly, render.NewPDFRenderer())
}

func setupInvoiceServiceWith(t *testing.T, measurer invoice.Measurer, pdf render.VectorRenderer) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	project := testutil.CreateTestProject(t, db, "Office Refit")

	seed := []struct{ desc, group, category, cost string }{
		{"a1", "Phase 1", "Plumbing", "100"},
		{"a2", "Phase 1", "Plumbing", "100"},
		{"b1", "Phase 2", "Electrical", "50"},
		{"a3", "Phase 1", "Electrical", "100"},
		{"b2", "Phase 2", "Electrical", "50"},
		{"a4", "Phase 1", "Plumbing", "100"},
		{"b3", "Phase 2", "Plumbing", "50"},
	}
	for i, s := range seed {
		testutil.CreateTestBudgetItem(t, db, project, i, s.desc, s.group, s.category, s.cost)
	}

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	clock := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	htmlRenderer, err := render.NewHTMLRenderer()
	require.NoError(t, err)

	svc := service.NewInvoiceService(
		repository.NewProjectRepository(db),
		repository.NewBudgetItemRepository(db),
		snapshot.NewStore(local, zap.NewNop()).WithClock(now),
		htmlRenderer,
		pdf,
		measurer,
		smallPage,
		zap.NewNop(),
	).WithClock(now)

	return &fixture{svc: svc, db: db, project: project, clock: &clock}
}

func (f *fixture) open(t *testing.T) uuid.UUID {
	t.Helper()
	state, err := f.svc.Open(context.Background(), &domain.OpenInvoiceSessionRequest{ProjectID: f.project.ID})
	require.NoError(t, err)
	return state.ID
}

// ============================================================================
// Session lifecycle
// ============================================================================

func TestInvoiceService_Open(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()

	state, err := f.svc.Open(ctx, &domain.OpenInvoiceSessionRequest{ProjectID: f.project.ID})
	require.NoError(t, err)

	assert.Equal(t, f.project.ID, state.ProjectID)
	assert.Equal(t, 7, state.ItemCount)
	assert.Equal(t, 9, state.RowCount)
	assert.Equal(t, []int{8, 1}, state.PageShape)
	assert.Equal(t, []int{0, 1}, state.SelectedPages)
	assert.Equal(t, "550.00", state.Totals.Subtotal)
	assert.Equal(t, "Office Refit", state.Header.ProjectTitle)
	assert.True(t, state.InvoiceDirty)
	assert.False(t, state.BrandingDirty)
	assert.Empty(t, state.SavedInvoices)
	assert.Equal(t, 1, f.svc.SessionCount())

	t.Run("unknown project", func(t *testing.T) {
		_, err := f.svc.Open(ctx, &domain.OpenInvoiceSessionRequest{ProjectID: uuid.New()})
		assert.ErrorIs(t, err, service.ErrProjectNotFound)
	})
}

func TestInvoiceService_UnknownSession(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.Close(ctx, uuid.New()), service.ErrSessionNotFound)
}

func TestInvoiceService_CloseAndReap(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	idle := f.open(t)

	*f.clock = f.clock.Add(20 * time.Minute)
	active := f.open(t)

	*f.clock = f.clock.Add(20 * time.Minute)
	assert.Equal(t, 1, f.svc.ReapIdleSessions(ctx, 30*time.Minute))

	_, err := f.svc.Get(ctx, idle)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	_, err = f.svc.Get(ctx, active)
	require.NoError(t, err)

	require.NoError(t, f.svc.Close(ctx, active))
	assert.Equal(t, 0, f.svc.SessionCount())
}

// ============================================================================
// Editing
// ============================================================================

func TestInvoiceService_GroupingRelayouts(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	state, err := f.svc.ToggleGroupValue(ctx, id, &domain.ToggleGroupValueRequest{Value: "Phase 2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Phase 2"}, state.GroupValues)
	assert.Equal(t, 4, state.RowCount)
	assert.Equal(t, []int{4}, state.PageShape)
	assert.Equal(t, "150.00", state.Totals.Subtotal)
	assert.True(t, state.LayoutCurrent)

	state, err = f.svc.SetGroupField(ctx, id, &domain.SetGroupFieldRequest{Field: domain.GroupFieldCategory})
	require.NoError(t, err)
	assert.Empty(t, state.GroupValues)
	assert.Equal(t, []string{"Plumbing", "Electrical"}, state.GroupOptions)
	assert.Equal(t, 9, state.RowCount)

	state, err = f.svc.SelectAllGroupValues(ctx, id, &domain.SelectAllRequest{Checked: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Plumbing", "Electrical"}, state.GroupValues)
}

func TestInvoiceService_UpdateHeaderTotals(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	state, err := f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{
		InvoiceNumber: strPtr(" INV-7 "),
		TaxRate:       strPtr("25"),
		Deposit:       strPtr("$100.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-7", state.Header.InvoiceNumber)
	assert.Equal(t, "137.50", state.Totals.Tax)
	assert.Equal(t, "587.00", state.Totals.TotalDue)

	state, err = f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{TotalDue: strPtr("700")})
	require.NoError(t, err)
	assert.Equal(t, "700.00", state.Totals.TotalDue)
	assert.True(t, state.Totals.TotalDueOverride)

	state, err = f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{ClearTotalDue: true})
	require.NoError(t, err)
	assert.Equal(t, "587.00", state.Totals.TotalDue)
	assert.False(t, state.Totals.TotalDueOverride)
}

func TestInvoiceService_CommitBranding(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	state, err := f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{
		BrandName:    strPtr("Straye Tak"),
		BrandLogoURL: strPtr("data:image/png;base64,AAAA"),
	})
	require.NoError(t, err)
	assert.True(t, state.BrandingDirty)

	state, err = f.svc.CommitBranding(ctx, id)
	require.NoError(t, err)
	assert.False(t, state.BrandingDirty)

	project, err := repository.NewProjectRepository(f.db).GetByID(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Straye Tak", project.InvoiceBrandName)
	assert.Empty(t, project.InvoiceBrandLogoKey, "inline logos are not persisted")
}

func TestInvoiceService_ReloadItems(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	state, err := f.svc.ToggleGroupValue(ctx, id, &domain.ToggleGroupValueRequest{Value: "Phase 2"})
	require.NoError(t, err)
	require.Equal(t, 4, state.RowCount)

	require.NoError(t, f.db.Where("invoice_group = ?", "Phase 2").Delete(&domain.BudgetItem{}).Error)
	testutil.CreateTestBudgetItem(t, f.db, f.project, 9, "c1", "Phase 3", "Roofing", "10")

	state, err = f.svc.ReloadItems(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, state.ItemCount)
	assert.Empty(t, state.GroupValues, "vanished values are pruned")
	assert.Equal(t, []string{"Phase 1", "Phase 3"}, state.GroupOptions)
}

// ============================================================================
// Layout
// ============================================================================

func TestInvoiceService_SubmitGeometry(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	tmpl, err := f.svc.MeasurementTemplate(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, tmpl.HTML, `data-region="top"`)

	heights := make([]float64, 9)
	for i := range heights {
		heights[i] = 10
	}
	state, err := f.svc.SubmitGeometry(ctx, id, &domain.SubmitGeometryRequest{
		LayoutVersion: tmpl.LayoutVersion,
		RowHeights:    heights,
		StaticTop:     100,
		StaticBottom:  100,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{9}, state.PageShape)

	t.Run("stale version", func(t *testing.T) {
		_, err := f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{InvoiceNumber: strPtr("1")})
		require.NoError(t, err)
		_, err = f.svc.SubmitGeometry(ctx, id, &domain.SubmitGeometryRequest{
			LayoutVersion: tmpl.LayoutVersion,
			RowHeights:    heights,
		})
		assert.ErrorIs(t, err, invoice.ErrStaleGeometry)
	})

	t.Run("row count mismatch", func(t *testing.T) {
		current, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		_, err = f.svc.SubmitGeometry(ctx, id, &domain.SubmitGeometryRequest{
			LayoutVersion: current.LayoutVersion,
			RowHeights:    heights[:3],
		})
		assert.ErrorIs(t, err, invoice.ErrStaleGeometry)
	})
}

func TestInvoiceService_Pages(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	state, err := f.svc.SetCurrentPage(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentPage)

	preview, err := f.svc.Preview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.Page)
	assert.Equal(t, 2, preview.PageCount)
	assert.Contains(t, preview.HTML, `data-total-kind="total"`)

	_, err = f.svc.SetCurrentPage(ctx, id, 5)
	assert.ErrorIs(t, err, invoice.ErrPageOutOfRange)

	state, err = f.svc.TogglePage(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, state.SelectedPages)

	state, err = f.svc.SelectAllPages(ctx, id, &domain.SelectAllRequest{Checked: false})
	require.NoError(t, err)
	assert.Empty(t, state.SelectedPages)

	html, err := f.svc.SnapshotHTML(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, html, `data-page-index="1"`, "no selection exports every page")
}

// ============================================================================
// PDF
// ============================================================================

func TestInvoiceService_PDFPreviewHandles(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	first, err := f.svc.CreatePDFPreview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/pdf-previews/"+first.Handle.String(), first.URL)

	data, err := f.svc.GetPDFPreview(ctx, first.Handle)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Equal(t, first.Size, len(data))

	second, err := f.svc.CreatePDFPreview(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, first.Handle, second.Handle)

	_, err = f.svc.GetPDFPreview(ctx, first.Handle)
	assert.ErrorIs(t, err, service.ErrPreviewNotFound, "previous handle is released")

	state, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, state.PDFPreview)
	assert.Equal(t, second.Handle, *state.PDFPreview)

	require.NoError(t, f.svc.Close(ctx, id))
	_, err = f.svc.GetPDFPreview(ctx, second.Handle)
	assert.ErrorIs(t, err, service.ErrPreviewNotFound, "closing releases the handle")
}

func TestInvoiceService_SharedExportOutlivesCaller(t *testing.T) {
	pdf := newGatedPDF()
	f := setupInvoiceServiceWith(t, rowsOnly, pdf)
	id := f.open(t)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.ExportPDF(first, id)
		firstErr <- err
	}()
	<-pdf.started

	type result struct {
		data []byte
		err  error
	}
	second := make(chan result, 1)
	go func() {
		data, err := f.svc.ExportPDF(context.Background(), id)
		second <- result{data, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(pdf.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "%PDF-1.4", string(res.data))
	assert.Equal(t, int32(1), pdf.calls.Load(), "identical exports share one render")
}

func TestInvoiceService_ExportEmpty(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	require.NoError(t, f.db.Where("project_id = ?", f.project.ID).Delete(&domain.BudgetItem{}).Error)
	id := f.open(t)

	state, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, state.PageCount)

	_, err = f.svc.ExportPDF(ctx, id)
	assert.ErrorIs(t, err, render.ErrNothingToExport)

	_, err = f.svc.CreatePDFPreview(ctx, id)
	assert.ErrorIs(t, err, render.ErrNothingToExport)

	state, err = f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, state.PDFPreview, "failed export registers no handle")
}

// ============================================================================
// Saved snapshots
// ============================================================================

func TestInvoiceService_SaveLoadRoundTrip(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	_, err := f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{
		InvoiceNumber: strPtr("INV-1"),
		Deposit:       strPtr("50"),
		Notes:         strPtr(`<p>Pay to <b>1234.56.78901</b></p><script>x()</script>`),
	})
	require.NoError(t, err)
	_, err = f.svc.SetGroupField(ctx, id, &domain.SetGroupFieldRequest{Field: domain.GroupFieldCategory})
	require.NoError(t, err)
	_, err = f.svc.ToggleGroupValue(ctx, id, &domain.ToggleGroupValueRequest{Value: "Plumbing"})
	require.NoError(t, err)

	saved, err := f.svc.SaveSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "office-refit-0-2026-10-18-", saved.Name[:len("office-refit-0-2026-10-18-")])

	_, err = f.svc.SaveSnapshot(ctx, id)
	assert.ErrorIs(t, err, service.ErrAlreadySaved)

	before, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, before.InvoiceDirty)
	assert.Equal(t, saved.Name, before.CurrentFileName)

	_, err = f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{InvoiceNumber: strPtr("INV-2")})
	require.NoError(t, err)
	_, err = f.svc.SetGroupField(ctx, id, &domain.SetGroupFieldRequest{Field: domain.GroupFieldInvoiceGroup})
	require.NoError(t, err)

	after, err := f.svc.LoadSnapshot(ctx, id, &domain.SnapshotKeyRequest{Key: saved.Key})
	require.NoError(t, err)
	assert.Equal(t, "INV-1", after.Header.InvoiceNumber)
	assert.Equal(t, before.Header, after.Header)
	assert.Equal(t, domain.GroupFieldCategory, after.GroupField)
	assert.Equal(t, []string{"Plumbing"}, after.GroupValues)
	assert.Equal(t, before.Totals, after.Totals)
	assert.Equal(t, before.PageShape, after.PageShape)
	assert.False(t, after.InvoiceDirty)

	t.Run("reopened session lists it", func(t *testing.T) {
		other := f.open(t)
		list, err := f.svc.ListSnapshots(ctx, other)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, saved.Key, list[0].Key)
	})
}

func TestInvoiceService_LoadFailureLeavesSession(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)
	before, err := f.svc.Get(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.LoadSnapshot(ctx, id, &domain.SnapshotKeyRequest{Key: snapshot.Key(f.project.ID, "missing.html")})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.LoadSnapshot(ctx, id, &domain.SnapshotKeyRequest{Key: snapshot.Key(uuid.New(), "a.html")})
	assert.ErrorIs(t, err, service.ErrForbidden)

	after, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInvoiceService_LoadSnapshotSurvivesMeasureFailure(t *testing.T) {
	m := &switchMeasurer{}
	f := setupInvoiceServiceWith(t, m, render.NewPDFRenderer())
	ctx := context.Background()
	id := f.open(t)

	_, err := f.svc.UpdateHeader(ctx, id, &domain.UpdateInvoiceHeaderRequest{InvoiceNumber: strPtr("INV-7")})
	require.NoError(t, err)
	_, err = f.svc.SetGroupField(ctx, id, &domain.SetGroupFieldRequest{Field: domain.GroupFieldCategory})
	require.NoError(t, err)
	_, err = f.svc.ToggleGroupValue(ctx, id, &domain.ToggleGroupValueRequest{Value: "Plumbing"})
	require.NoError(t, err)
	saved, err := f.svc.SaveSnapshot(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.SetGroupField(ctx, id, &domain.SetGroupFieldRequest{Field: domain.GroupFieldInvoiceGroup})
	require.NoError(t, err)

	m.fail.Store(true)
	state, err := f.svc.LoadSnapshot(ctx, id, &domain.SnapshotKeyRequest{Key: saved.Key})
	require.NoError(t, err)
	assert.Equal(t, "INV-7", state.Header.InvoiceNumber)
	assert.Equal(t, domain.GroupFieldCategory, state.GroupField)
	assert.Equal(t, saved.Name, state.CurrentFileName)
	assert.False(t, state.LayoutCurrent)

	m.fail.Store(false)
	state, err = f.svc.Measure(ctx, id)
	require.NoError(t, err)
	assert.True(t, state.LayoutCurrent)
}

func TestInvoiceService_DeleteSnapshots(t *testing.T) {
	f := setupInvoiceService(t)
	ctx := context.Background()
	id := f.open(t)

	saved, err := f.svc.SaveSnapshot(ctx, id)
	require.NoError(t, err)
	state, err := f.svc.ToggleSavedSelection(ctx, id, &domain.SnapshotKeyRequest{Key: saved.Key})
	require.NoError(t, err)
	assert.Equal(t, []string{saved.Key}, state.SelectedSaved)

	foreign := snapshot.Key(uuid.New(), "x.html")
	resp, err := f.svc.DeleteSnapshots(ctx, id, &domain.DeleteSnapshotsRequest{Keys: []string{saved.Key, foreign}})
	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrForeignKey)
	assert.Equal(t, []string{saved.Key}, resp.Deleted)
	assert.Contains(t, resp.Failed, foreign)

	state, err = f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, state.SavedInvoices)
	assert.Empty(t, state.SelectedSaved)
	assert.Empty(t, state.CurrentFileName)
}
