package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/editor"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/logger"
	"github.com/straye-as/invoice-api/internal/render"
	"github.com/straye-as/invoice-api/internal/repository"
	"github.com/straye-as/invoice-api/internal/snapshot"
)

// sessionEntry serializes every request against one session.
type sessionEntry struct {
	mu      sync.Mutex
	session *editor.Session
}

// InvoiceService owns the open invoice editing sessions and the renderers
// and snapshot store they use.
type InvoiceService struct {
	projectRepo    *repository.ProjectRepository
	budgetItemRepo *repository.BudgetItemRepository
	store          *snapshot.Store
	html           *render.HTMLRenderer
	pdf            render.VectorRenderer
	measurer       invoice.Measurer
	budget         invoice.Budget
	logger         *zap.Logger
	now            func() time.Time
	renderTimeout  time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
	previews map[uuid.UUID]uuid.UUID // preview handle -> session id

	exports singleflight.Group
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	projectRepo *repository.ProjectRepository,
	budgetItemRepo *repository.BudgetItemRepository,
	store *snapshot.Store,
	html *render.HTMLRenderer,
	pdf render.VectorRenderer,
	measurer invoice.Measurer,
	budget invoice.Budget,
	logger *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		projectRepo:    projectRepo,
		budgetItemRepo: budgetItemRepo,
		store:          store,
		html:           html,
		pdf:            pdf,
		measurer:       measurer,
		budget:         budget,
		logger:         logger,
		now:            time.Now,
		renderTimeout:  2 * time.Minute,
		sessions:       make(map[uuid.UUID]*sessionEntry),
		previews:       make(map[uuid.UUID]uuid.UUID),
	}
}

// WithRenderTimeout bounds each PDF render. Zero keeps the default.
func (s *InvoiceService) WithRenderTimeout(d time.Duration) *InvoiceService {
	if d > 0 {
		s.renderTimeout = d
	}
	return s
}

// WithClock replaces the clock used for session activity and header dates.
func (s *InvoiceService) WithClock(now func() time.Time) *InvoiceService {
	s.now = now
	return s
}

func (s *InvoiceService) entry(id uuid.UUID) (*sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// withSession runs fn with the session locked and records activity.
func (s *InvoiceService) withSession(id uuid.UUID, fn func(sess *editor.Session) error) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ErrSessionNotFound
	}
	e.session.Touch(s.now())
	return fn(e.session)
}

// stateOf runs fn and returns the resulting session state.
func (s *InvoiceService) stateOf(id uuid.UUID, fn func(sess *editor.Session) error) (*editor.State, error) {
	var state editor.State
	err := s.withSession(id, func(sess *editor.Session) error {
		if err := fn(sess); err != nil {
			return err
		}
		state = sess.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *InvoiceService) sessionLogger(sess *editor.Session) *zap.Logger {
	return logger.WithSession(s.logger, sess.ID().String(), sess.Project().ID.String())
}

// relayout measures the session's document with the server-side measurer
// and commits the resulting pages.
func (s *InvoiceService) relayout(ctx context.Context, sess *editor.Session) error {
	changed, err := sess.Relayout(ctx, s.measurer)
	if err != nil {
		return err
	}
	if changed {
		s.sessionLogger(sess).Debug("Invoice pages changed",
			zap.Ints("shape", sess.Pages().Shape()),
		)
	}
	return nil
}

// ============================================================================
// Session lifecycle
// ============================================================================

// Open starts an editing session over a project's budget items
func (s *InvoiceService) Open(ctx context.Context, req *domain.OpenInvoiceSessionRequest) (*editor.State, error) {
	project, err := s.projectRepo.GetByID(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	items, err := s.budgetItemRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget items: %w", err)
	}

	sess := editor.New(uuid.New(), *project, items, s.budget, s.now())
	if err := s.relayout(ctx, sess); err != nil {
		return nil, err
	}

	saved, err := s.store.List(ctx, project.ID)
	if err != nil {
		s.logger.Warn("Failed to list saved invoices",
			zap.String("project_id", project.ID.String()),
			zap.Error(err),
		)
	} else {
		sess.SetSavedSnapshots(saved)
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = &sessionEntry{session: sess}
	s.mu.Unlock()

	s.sessionLogger(sess).Info("Invoice session opened",
		zap.Int("items", len(items)),
		zap.Int("pages", len(sess.Pages())),
	)
	state := sess.State()
	return &state, nil
}

// Get returns the state of a session
func (s *InvoiceService) Get(ctx context.Context, id uuid.UUID) (*editor.State, error) {
	return s.stateOf(id, func(*editor.Session) error { return nil })
}

// Close ends a session and releases its PDF preview.
func (s *InvoiceService) Close(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.mu.Unlock()
	if sess != nil {
		s.forgetPreview(sess.ReleasePDFPreview())
	}

	s.logger.Info("Invoice session closed", zap.String("session_id", id.String()))
	return nil
}

// SessionCount is the number of open sessions.
func (s *InvoiceService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ReapIdleSessions closes sessions untouched for longer than ttl and returns
// how many were closed.
func (s *InvoiceService) ReapIdleSessions(ctx context.Context, ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for id, e := range s.sessions {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	s.mu.Unlock()

	closed := 0
	for i, e := range entries {
		e.mu.Lock()
		idle := e.session != nil && e.session.Touched().Before(cutoff)
		e.mu.Unlock()
		if !idle {
			continue
		}
		if err := s.Close(ctx, ids[i]); err == nil {
			closed++
		}
	}
	return closed
}

// ============================================================================
// Header, branding and grouping
// ============================================================================

// UpdateHeader patches header fields and totals inputs
func (s *InvoiceService) UpdateHeader(ctx context.Context, id uuid.UUID, req *domain.UpdateInvoiceHeaderRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		if !sess.UpdateHeader(*req) {
			return nil
		}
		return s.relayout(ctx, sess)
	})
}

// CommitBranding persists the session's brand fields on the project and
// makes them the new branding baseline.
func (s *InvoiceService) CommitBranding(ctx context.Context, id uuid.UUID) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		project := sess.Project()
		brand := sess.Header().Brand

		// Inline data URLs stay in the session; only references are stored.
		logoKey := project.InvoiceBrandLogoKey
		if !strings.HasPrefix(strings.ToLower(brand.LogoURL), "data:") {
			logoKey = brand.LogoURL
		}
		err := s.projectRepo.UpdateInvoiceBranding(ctx, project.ID, domain.InvoiceBranding{
			Name:    brand.Name,
			Tagline: brand.Tagline,
			Address: brand.Address,
			Phone:   brand.Phone,
			LogoKey: logoKey,
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return fmt.Errorf("failed to save invoice branding: %w", err)
		}
		sess.CommitBranding()

		s.sessionLogger(sess).Info("Invoice branding committed")
		return nil
	})
}

// SetGroupField switches the grouping axis
func (s *InvoiceService) SetGroupField(ctx context.Context, id uuid.UUID, req *domain.SetGroupFieldRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		if err := sess.SetGroupField(req.Field); err != nil {
			return err
		}
		return s.relayout(ctx, sess)
	})
}

// ToggleGroupValue adds or removes one value from the group selection
func (s *InvoiceService) ToggleGroupValue(ctx context.Context, id uuid.UUID, req *domain.ToggleGroupValueRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		if err := sess.ToggleGroupValue(req.Value); err != nil {
			return err
		}
		return s.relayout(ctx, sess)
	})
}

// SelectAllGroupValues selects or clears every group value
func (s *InvoiceService) SelectAllGroupValues(ctx context.Context, id uuid.UUID, req *domain.SelectAllRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		sess.SelectAllGroupValues(req.Checked)
		return s.relayout(ctx, sess)
	})
}

// ReloadItems refetches the project's budget items into the session
func (s *InvoiceService) ReloadItems(ctx context.Context, id uuid.UUID) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		items, err := s.budgetItemRepo.ListByProject(ctx, sess.Project().ID)
		if err != nil {
			return fmt.Errorf("failed to list budget items: %w", err)
		}
		sess.ReplaceItems(items)
		return s.relayout(ctx, sess)
	})
}

// ============================================================================
// Layout
// ============================================================================

// MeasurementTemplate renders the unpaginated document a browser measures
func (s *InvoiceService) MeasurementTemplate(ctx context.Context, id uuid.UUID) (*domain.MeasurementTemplateDTO, error) {
	var dto domain.MeasurementTemplateDTO
	err := s.withSession(id, func(sess *editor.Session) error {
		html, err := s.html.MeasurementTemplate(sess.Document(), sess.LayoutVersion())
		if err != nil {
			return err
		}
		dto = domain.MeasurementTemplateDTO{LayoutVersion: sess.LayoutVersion(), HTML: html}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

// Measure re-runs layout with the server-side measurer
func (s *InvoiceService) Measure(ctx context.Context, id uuid.UUID) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		return s.relayout(ctx, sess)
	})
}

// SubmitGeometry paginates with geometry measured by a client for the given
// layout version.
func (s *InvoiceService) SubmitGeometry(ctx context.Context, id uuid.UUID, req *domain.SubmitGeometryRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		changed, err := sess.ApplyGeometry(req.LayoutVersion, invoice.Geometry{
			RowHeights:        req.RowHeights,
			StaticTop:         req.StaticTop,
			StaticBottom:      req.StaticBottom,
			PagePaddingBottom: req.PagePaddingBottom,
		})
		if err != nil {
			return err
		}
		if changed {
			s.sessionLogger(sess).Debug("Invoice pages changed from client geometry",
				zap.Ints("shape", sess.Pages().Shape()),
			)
		}
		return nil
	})
}

// SetCurrentPage moves the page cursor
func (s *InvoiceService) SetCurrentPage(ctx context.Context, id uuid.UUID, index int) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		return sess.SetCurrentPage(index)
	})
}

// TogglePage flips one page in the export selection
func (s *InvoiceService) TogglePage(ctx context.Context, id uuid.UUID, index int) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		return sess.TogglePage(index)
	})
}

// SelectAllPages selects or clears every page
func (s *InvoiceService) SelectAllPages(ctx context.Context, id uuid.UUID, req *domain.SelectAllRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		sess.SelectAllPages(req.Checked)
		return nil
	})
}

// ============================================================================
// Rendering and export
// ============================================================================

// Preview renders the page under the cursor
func (s *InvoiceService) Preview(ctx context.Context, id uuid.UUID) (*domain.PreviewDTO, error) {
	var dto domain.PreviewDTO
	err := s.withSession(id, func(sess *editor.Session) error {
		html, err := s.html.Preview(sess.Document(), sess.Pages(), sess.CurrentPage())
		if err != nil {
			return err
		}
		dto = domain.PreviewDTO{Page: sess.CurrentPage(), PageCount: len(sess.Pages()), HTML: html}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

// SnapshotHTML serializes the selected pages without saving them
func (s *InvoiceService) SnapshotHTML(ctx context.Context, id uuid.UUID) (string, error) {
	var out string
	err := s.withSession(id, func(sess *editor.Session) error {
		html, err := s.html.Snapshot(sess.Document(), sess.Pages(), sess.SelectedPages())
		if err != nil {
			return err
		}
		out = html
		return nil
	})
	return out, err
}

// exportJob is everything a PDF render needs, copied out of a session so
// the render runs without holding the session lock.
type exportJob struct {
	key      string
	doc      *invoice.Document
	pages    invoice.PageAssignment
	selected []int
}

func (s *InvoiceService) exportJob(id uuid.UUID) (*exportJob, error) {
	var job *exportJob
	err := s.withSession(id, func(sess *editor.Session) error {
		selected := sess.SelectedPages()
		job = &exportJob{
			key:      fmt.Sprintf("%s:%d:%v", id, sess.LayoutVersion(), selected),
			doc:      sess.Document(),
			pages:    append(invoice.PageAssignment{}, sess.Pages()...),
			selected: selected,
		}
		return nil
	})
	return job, err
}

// renderPDF renders a job, collapsing concurrent identical exports.
func (s *InvoiceService) renderPDF(ctx context.Context, job *exportJob) ([]byte, error) {
	ch := s.exports.DoChan(job.key, func() (interface{}, error) {
		// The render is shared by every caller of the flight and outlives
		// the one that started it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.renderTimeout)
		defer cancel()
		return s.pdf.RenderPDF(rctx, job.doc, job.pages, job.selected)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// ExportPDF renders the selected pages as a PDF document
func (s *InvoiceService) ExportPDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	job, err := s.exportJob(id)
	if err != nil {
		return nil, err
	}
	data, err := s.renderPDF(ctx, job)
	if err != nil {
		if !errors.Is(err, render.ErrNothingToExport) {
			s.logger.Error("Failed to export invoice PDF",
				zap.String("session_id", id.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return data, nil
}

// CreatePDFPreview renders the selected pages and registers the result
// under a fresh handle, releasing the session's previous preview.
func (s *InvoiceService) CreatePDFPreview(ctx context.Context, id uuid.UUID) (*domain.PDFPreviewDTO, error) {
	data, err := s.ExportPDF(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		preview  *editor.PDFPreview
		released *uuid.UUID
	)
	err = s.withSession(id, func(sess *editor.Session) error {
		preview, released = sess.SetPDFPreview(data, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if released != nil {
		delete(s.previews, *released)
	}
	s.previews[preview.Handle] = id
	s.mu.Unlock()

	return &domain.PDFPreviewDTO{
		Handle: preview.Handle,
		URL:    "/api/v1/pdf-previews/" + preview.Handle.String(),
		Size:   len(preview.Data),
	}, nil
}

// GetPDFPreview returns the bytes behind a live preview handle
func (s *InvoiceService) GetPDFPreview(ctx context.Context, handle uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	id, ok := s.previews[handle]
	s.mu.Unlock()
	if !ok {
		return nil, ErrPreviewNotFound
	}

	var data []byte
	err := s.withSession(id, func(sess *editor.Session) error {
		p := sess.PDFPreview()
		if p == nil || p.Handle != handle {
			return ErrPreviewNotFound
		}
		data = p.Data
		return nil
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrPreviewNotFound
	}
	return data, err
}

// ReleasePDFPreview drops the session's preview
func (s *InvoiceService) ReleasePDFPreview(ctx context.Context, id uuid.UUID) error {
	return s.withSession(id, func(sess *editor.Session) error {
		s.forgetPreview(sess.ReleasePDFPreview())
		return nil
	})
}

func (s *InvoiceService) forgetPreview(handle *uuid.UUID) {
	if handle == nil {
		return
	}
	s.mu.Lock()
	delete(s.previews, *handle)
	s.mu.Unlock()
}

// ============================================================================
// Saved snapshots
// ============================================================================

// ListSnapshots refreshes the session's known snapshot list from storage
func (s *InvoiceService) ListSnapshots(ctx context.Context, id uuid.UUID) ([]domain.SavedInvoiceSnapshot, error) {
	var list []domain.SavedInvoiceSnapshot
	err := s.withSession(id, func(sess *editor.Session) error {
		saved, err := s.store.List(ctx, sess.Project().ID)
		if err != nil {
			return err
		}
		sess.SetSavedSnapshots(saved)
		list = sess.SavedSnapshots()
		return nil
	})
	return list, err
}

// SaveSnapshot serializes the selected pages and stores them as a new
// snapshot file.
func (s *InvoiceService) SaveSnapshot(ctx context.Context, id uuid.UUID) (*domain.SavedInvoiceSnapshot, error) {
	var saved domain.SavedInvoiceSnapshot
	err := s.withSession(id, func(sess *editor.Session) error {
		if !sess.InvoiceDirty() {
			return ErrAlreadySaved
		}
		document, err := s.html.Snapshot(sess.Document(), sess.Pages(), sess.SelectedPages())
		if err != nil {
			return err
		}
		project := sess.Project()
		saved, err = s.store.Save(ctx, &project, document)
		if err != nil {
			return err
		}
		sess.MarkSaved(saved)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// LoadSnapshot replaces the session's editable state with a saved snapshot.
// The session is left untouched when fetching or parsing fails.
func (s *InvoiceService) LoadSnapshot(ctx context.Context, id uuid.UUID, req *domain.SnapshotKeyRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		document, err := s.store.Load(ctx, sess.Project().ID, req.Key)
		if err != nil {
			if errors.Is(err, snapshot.ErrForeignKey) {
				return fmt.Errorf("%w: %v", ErrForbidden, err)
			}
			return err
		}
		parsed, err := snapshot.Parse(strings.NewReader(document), sess.Items(), domain.GroupFields)
		if err != nil {
			s.sessionLogger(sess).Warn("Failed to parse invoice snapshot",
				zap.String("key", req.Key),
				zap.Error(err),
			)
			return err
		}
		sess.ApplySnapshot(parsed, snapshot.Name(req.Key))
		// The snapshot is applied; a failed measure only leaves the layout
		// stale until the next measure.
		if err := s.relayout(ctx, sess); err != nil {
			s.sessionLogger(sess).Warn("Failed to relayout loaded snapshot",
				zap.String("key", req.Key),
				zap.Error(err),
			)
		}
		s.sessionLogger(sess).Info("Invoice snapshot loaded",
			zap.String("key", req.Key),
			zap.Int("pages", parsed.PageCount),
		)
		return nil
	})
}

// ToggleSavedSelection flips one snapshot in the saved-list selection
func (s *InvoiceService) ToggleSavedSelection(ctx context.Context, id uuid.UUID, req *domain.SnapshotKeyRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		sess.ToggleSavedSelection(req.Key)
		return nil
	})
}

// SelectAllSaved selects or clears every saved snapshot
func (s *InvoiceService) SelectAllSaved(ctx context.Context, id uuid.UUID, req *domain.SelectAllRequest) (*editor.State, error) {
	return s.stateOf(id, func(sess *editor.Session) error {
		sess.SelectAllSaved(req.Checked)
		return nil
	})
}

// DeleteSnapshots deletes a batch of snapshots. Keys that fail stay in the
// session's list; the joined error describes them.
func (s *InvoiceService) DeleteSnapshots(ctx context.Context, id uuid.UUID, req *domain.DeleteSnapshotsRequest) (*domain.DeleteSnapshotsResponse, error) {
	resp := &domain.DeleteSnapshotsResponse{Deleted: []string{}}
	var joined error
	err := s.withSession(id, func(sess *editor.Session) error {
		projectID := sess.Project().ID
		deleted, err := s.store.Delete(ctx, projectID, req.Keys)
		sess.RemoveSaved(deleted)
		resp.Deleted = append(resp.Deleted, deleted...)
		joined = err
		if err == nil {
			return nil
		}

		done := make(map[string]bool, len(deleted))
		for _, k := range deleted {
			done[k] = true
		}
		resp.Failed = make(map[string]string)
		for _, k := range req.Keys {
			if done[k] {
				continue
			}
			if snapshot.InNamespace(projectID, k) {
				resp.Failed[k] = "failed to delete snapshot"
			} else {
				resp.Failed[k] = snapshot.ErrForeignKey.Error()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if joined != nil {
		s.logger.Warn("Some invoice snapshots were not deleted",
			zap.String("session_id", id.String()),
			zap.Strings("failed", failedKeys(resp.Failed)),
			zap.Error(joined),
		)
	}
	return resp, joined
}

func failedKeys(failed map[string]string) []string {
	keys := make([]string, 0, len(failed))
	for k := range failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
