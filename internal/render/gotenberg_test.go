package render_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straye-as/invoice-api/internal/render"
)

func TestGotenbergClient_RenderHTML(t *testing.T) {
	var files map[string]string
	var paperWidth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forms/chromium/convert/html" {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files = map[string]string{}
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			_ = f.Close()
			files[fh.Filename] = string(data)
		}
		paperWidth = r.FormValue("paperWidth")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	out, err := render.NewGotenbergClient(srv.URL+"/", 0).RenderHTML(context.Background(), "<html>doc</html>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(out))
	assert.Equal(t, "<html>doc</html>", files["index.html"])
	assert.Contains(t, files["footer.html"], `class="pageNumber"`)
	assert.Equal(t, "8.27", paperWidth)
}

func TestGotenbergClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := render.NewGotenbergClient(srv.URL, 0)
	_, err := client.RenderHTML(context.Background(), "<html></html>")
	assert.Error(t, err)
	assert.Error(t, client.Ping(context.Background()))
}

func TestChromiumRenderer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, err := r.MultipartForm.File["files"][0].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		got = string(data)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	doc := newDocument(items(map[string]int{"A": 2, "B": 1}, "A", "B"))
	pages := paginate(t, doc, tallRows)
	r := render.NewChromiumRenderer(newHTMLRenderer(t), render.NewGotenbergClient(srv.URL, 0))

	out, err := r.RenderPDF(context.Background(), doc, pages, nil)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(out))
	assert.Contains(t, got, `<tbody class="unit">`)

	_, err = r.RenderPDF(context.Background(), newDocument(nil), nil, nil)
	assert.ErrorIs(t, err, render.ErrNothingToExport)
}
