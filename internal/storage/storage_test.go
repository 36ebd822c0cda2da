package storage_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/straye-as/invoice-api/internal/config"
	"github.com/straye-as/invoice-api/internal/storage"
)

func newLocal(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStorage_PutDownloadDelete(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	n, err := s.Put(ctx, "projects/p1/invoices/a.html", "text/html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	rc, err := s.Download(ctx, "projects/p1/invoices/a.html")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "<html></html>", string(data))

	require.NoError(t, s.Delete(ctx, "projects/p1/invoices/a.html"))
	require.NoError(t, s.Delete(ctx, "projects/p1/invoices/a.html"), "deleting twice is not an error")

	_, err = s.Download(ctx, "projects/p1/invoices/a.html")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocalStorage_List(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := storage.NewLocalStorage(base)
	require.NoError(t, err)

	for _, key := range []string{
		"projects/p1/invoices/b.html",
		"projects/p1/invoices/a.html",
		"projects/p2/invoices/c.html",
	} {
		_, err := s.Put(ctx, key, "text/html", strings.NewReader("x"))
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(base, "projects", "p1", "invoices", "folder"), 0755))

	objects, err := s.List(ctx, "projects/p1/invoices/")
	require.NoError(t, err)
	keys := make([]string, len(objects))
	for i, o := range objects {
		keys[i] = o.Key
	}
	assert.Equal(t, []string{"projects/p1/invoices/a.html", "projects/p1/invoices/b.html"}, keys)
	assert.Equal(t, int64(1), objects[0].Size)

	empty, err := s.List(ctx, "projects/missing/invoices/")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "projects/p1/invoices/a.html", want: "projects/p1/invoices/a.html"},
		{key: "projects//p1/./a.html", want: "projects/p1/a.html"},
		{key: "", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "../secret", wantErr: true},
		{key: "projects/../../secret", wantErr: true},
		{key: `projects\p1`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := storage.CleanKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, storage.ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewStorage(t *testing.T) {
	s, err := storage.NewStorage(&config.StorageConfig{Mode: "local", LocalBasePath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStorage{}, s)

	_, err = storage.NewStorage(&config.StorageConfig{Mode: "azure"}, zap.NewNop())
	assert.Error(t, err)

	_, err = storage.NewStorage(&config.StorageConfig{Mode: "ftp"}, zap.NewNop())
	assert.Error(t, err)
}
