package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/straye-as/invoice-api/internal/invoice"
)

// A4 in inches, as Gotenberg expects.
const (
	a4WidthInches  = "8.27"
	a4HeightInches = "11.69"
)

const pageNumberFooter = `<html><head><style>
body{font-family:Helvetica,Arial,sans-serif;font-size:9px;color:#666;width:100%;text-align:center;margin:0 0 10px}
</style></head><body>Page <span class="pageNumber"></span> of <span class="totalPages"></span></body></html>`

// GotenbergClient wraps the Gotenberg Chromium conversion API.
type GotenbergClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGotenbergClient constructs a client; timeout 0 means 30 seconds.
func NewGotenbergClient(baseURL string, timeout time.Duration) *GotenbergClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GotenbergClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ping checks if the remote Gotenberg service is available.
func (c *GotenbergClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts a full HTML document into an A4 PDF with a
// "Page n of N" footer.
func (c *GotenbergClient) RenderHTML(ctx context.Context, document string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	files := map[string]string{
		"index.html":  document,
		"footer.html": pageNumberFooter,
	}
	for _, name := range []string{"index.html", "footer.html"} {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, strings.NewReader(files[name])); err != nil {
			return nil, err
		}
	}
	fields := [][2]string{
		{"paperWidth", a4WidthInches},
		{"paperHeight", a4HeightInches},
		{"marginTop", "0.4"},
		{"marginBottom", "0.6"},
		{"marginLeft", "0.4"},
		{"marginRight", "0.4"},
		{"printBackground", "true"},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("render failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ChromiumRenderer is a VectorRenderer that prints the flow document through
// Gotenberg. Chromium paginates on its own; units are marked unbreakable.
type ChromiumRenderer struct {
	html   *HTMLRenderer
	client *GotenbergClient
}

// NewChromiumRenderer returns a renderer backed by client.
func NewChromiumRenderer(html *HTMLRenderer, client *GotenbergClient) *ChromiumRenderer {
	return &ChromiumRenderer{html: html, client: client}
}

// RenderPDF implements VectorRenderer.
func (r *ChromiumRenderer) RenderPDF(ctx context.Context, doc *invoice.Document, pages invoice.PageAssignment, selected []int) ([]byte, error) {
	rows := ExportRows(doc.Rows, pages, selected)
	if len(rows) == 0 {
		return nil, ErrNothingToExport
	}
	document, err := r.html.FlowDocument(doc, rows)
	if err != nil {
		return nil, err
	}
	pdf, err := r.client.RenderHTML(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("failed to render pdf with gotenberg: %w", err)
	}
	return pdf, nil
}
