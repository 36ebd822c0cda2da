package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/storage"
)

// ErrForeignKey is returned for keys outside the project's snapshot
// namespace.
var ErrForeignKey = errors.New("key is outside the project snapshot namespace")

const contentType = "text/html; charset=utf-8"

// Store persists snapshot documents under projects/{id}/invoices/.
type Store struct {
	storage storage.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates a store over any storage backend.
func NewStore(s storage.Storage, logger *zap.Logger) *Store {
	return &Store{storage: s, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for file names.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Save writes document under a fresh file name derived from the project.
func (s *Store) Save(ctx context.Context, project *domain.Project, document string) (domain.SavedInvoiceSnapshot, error) {
	name := FileName(project.Title, project.CurrentRevision, s.now().UTC(), uuid.New())
	key := Key(project.ID, name)

	size, err := s.storage.Put(ctx, key, contentType, strings.NewReader(document))
	if err != nil {
		return domain.SavedInvoiceSnapshot{}, fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.logger.Info("Invoice snapshot saved",
		zap.String("project_id", project.ID.String()),
		zap.String("key", key),
		zap.Int64("size", size),
	)
	return domain.SavedInvoiceSnapshot{Name: name, Key: key}, nil
}

// List returns every snapshot of the project, newest first: by the date in
// the file name, then by modification time. Names without a date sort last.
func (s *Store) List(ctx context.Context, projectID uuid.UUID) ([]domain.SavedInvoiceSnapshot, error) {
	objects, err := s.storage.List(ctx, Namespace(projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	type entry struct {
		obj storage.Object
		day time.Time
	}
	entries := make([]entry, 0, len(objects))
	for _, o := range objects {
		if !InNamespace(projectID, o.Key) {
			continue
		}
		day, _ := SavedOn(Name(o.Key))
		entries = append(entries, entry{obj: o, day: day})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.day.Equal(b.day) {
			return a.day.After(b.day)
		}
		if !a.obj.LastModified.Equal(b.obj.LastModified) {
			return a.obj.LastModified.After(b.obj.LastModified)
		}
		return a.obj.Key > b.obj.Key
	})

	out := make([]domain.SavedInvoiceSnapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.SavedInvoiceSnapshot{Name: Name(e.obj.Key), Key: e.obj.Key})
	}
	return out, nil
}

// Load reads a snapshot document.
func (s *Store) Load(ctx context.Context, projectID uuid.UUID, key string) (string, error) {
	if !InNamespace(projectID, key) {
		return "", fmt.Errorf("%w: %s", ErrForeignKey, key)
	}
	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot: %w", err)
	}
	return string(data), nil
}

// Delete removes keys one by one. It returns the keys confirmed deleted and
// the joined errors of the rest.
func (s *Store) Delete(ctx context.Context, projectID uuid.UUID, keys []string) ([]string, error) {
	var (
		deleted []string
		errs    []error
	)
	for _, key := range keys {
		if !InNamespace(projectID, key) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrForeignKey, key))
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete invoice snapshot",
				zap.String("key", key),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
			continue
		}
		deleted = append(deleted, key)
	}
	return deleted, errors.Join(errs...)
}
