package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/straye-as/invoice-api/internal/auth"
	"github.com/straye-as/invoice-api/internal/config"
	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/http/handler"
	"github.com/straye-as/invoice-api/internal/http/middleware"
	"github.com/straye-as/invoice-api/internal/http/router"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/render"
	"github.com/straye-as/invoice-api/internal/repository"
	"github.com/straye-as/invoice-api/internal/service"
	"github.com/straye-as/invoice-api/internal/snapshot"
	"github.com/straye-as/invoice-api/internal/storage"
	"github.com/straye-as/invoice-api/internal/testutil"
)

const (
	testAPIKey = "router-test-key"
	testSecret = "router-test-secret"
)

func setupRouter(t *testing.T) (http.Handler, *domain.Project) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	project := testutil.CreateTestProject(t, db, "Office Refit")
	testutil.CreateTestBudgetItem(t, db, project, 0, "a1", "Phase 1", "Plumbing", "100")

	cfg := &config.Config{
		App:       config.AppConfig{Environment: "test"},
		Server:    config.ServerConfig{EnableSwagger: true},
		Auth:      config.AuthConfig{JWTSecret: testSecret},
		ApiKey:    config.ApiKeyConfig{Value: testAPIKey},
		RateLimit: config.RateLimitConfig{Enabled: false, RequestsPerMinute: 100, RequestsPerMinuteAuth: 100},
		Security:  config.SecurityConfig{ContentTypeNosniff: true, CacheControl: "no-store"},
	}

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	htmlRenderer, err := render.NewHTMLRenderer()
	require.NoError(t, err)

	svc := service.NewInvoiceService(
		repository.NewProjectRepository(db),
		repository.NewBudgetItemRepository(db),
		snapshot.NewStore(local, zap.NewNop()),
		htmlRenderer,
		render.NewPDFRenderer(),
		invoice.FixedMeasurer{GroupHeight: 30, ItemHeight: 40},
		invoice.DefaultBudget(),
		zap.NewNop(),
	)

	rt := router.NewRouter(
		cfg,
		zap.NewNop(),
		db,
		auth.NewMiddleware(cfg, zap.NewNop()),
		middleware.NewRateLimiter(&cfg.RateLimit, zap.NewNop()),
		handler.NewInvoiceHandler(svc, zap.NewNop()),
	)
	return rt.Setup(), project
}

func bearer(t *testing.T, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "5f0c3a52-8d4e-4b36-9c7a-7f1d2e3b4c5d",
		"name":  "Test User",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": roles,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func call(h http.Handler, method, path, authz string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ============================================================================
// Health
// ============================================================================

func TestRouter_Health(t *testing.T) {
	h, _ := setupRouter(t)

	w := call(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = call(h, http.MethodGet, "/health/db", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestRouter_SwaggerDocs(t *testing.T) {
	h, _ := setupRouter(t)

	w := call(h, http.MethodGet, "/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Straye Invoice API", doc.Info.Title)
	assert.Contains(t, doc.Paths, "/invoice-sessions")
	assert.Contains(t, doc.Paths["/invoice-sessions/{sessionID}/export.pdf"], "get")
}

// ============================================================================
// Authentication and permissions
// ============================================================================

func TestRouter_RequiresAuthentication(t *testing.T) {
	h, project := setupRouter(t)

	w := call(h, http.MethodPost, "/api/v1/invoice-sessions", "", map[string]string{"projectId": project.ID.String()})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoice-sessions",
		bytes.NewBufferString(`{"projectId":"`+project.ID.String()+`"}`))
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRouter_Permissions(t *testing.T) {
	h, project := setupRouter(t)
	open := map[string]string{"projectId": project.ID.String()}

	w := call(h, http.MethodPost, "/api/v1/invoice-sessions", bearer(t, string(domain.RoleInvoiceViewer)), open)
	assert.Equal(t, http.StatusForbidden, w.Code, "viewers cannot open sessions")

	editorToken := bearer(t, string(domain.RoleInvoiceEditor))
	w = call(h, http.MethodPost, "/api/v1/invoice-sessions", editorToken, open)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var state struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	base := "/api/v1/invoice-sessions/" + state.ID

	viewerToken := bearer(t, string(domain.RoleInvoiceViewer))
	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, base, viewerToken, nil).Code)
	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, base+"/preview", viewerToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, call(h, http.MethodPut, base+"/pages/current", viewerToken, map[string]int{"index": 0}).Code)

	assert.Equal(t, http.StatusOK, call(h, http.MethodPut, base+"/pages/current", editorToken, map[string]int{"index": 0}).Code)
	assert.Equal(t, http.StatusForbidden, call(h, http.MethodPost, base+"/branding/commit", editorToken, nil).Code,
		"editors cannot change stored branding")

	adminToken := bearer(t, string(domain.RoleInvoiceAdmin))
	assert.Equal(t, http.StatusOK, call(h, http.MethodPost, base+"/branding/commit", adminToken, nil).Code)

	w = call(h, http.MethodGet, base+"/export.pdf", viewerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNoContent, call(h, http.MethodDelete, base, editorToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, call(h, http.MethodGet, base, viewerToken, nil).Code)
}
