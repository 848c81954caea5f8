package handler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolmahajan9/photo20-app/internal/auth"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/handler"
	"github.com/anmolmahajan9/photo20-app/internal/service"
)

// =============================================================================
// Stub Service
// =============================================================================

// stubService records calls and returns canned responses.
type stubService struct {
	ideas   []domain.Idea
	result  *service.GenerationResult
	history []domain.Generation
	usage   domain.QuotaUsage
	err     error

	lastPrincipal domain.Principal
	lastUserID    string
	lastEmail     string
	calls         int
}

func (s *stubService) SuggestIdeas(_ context.Context, p domain.Principal, _ service.SuggestIdeasParams) ([]domain.Idea, error) {
	s.calls++
	s.lastPrincipal = p
	return s.ideas, s.err
}

func (s *stubService) GenerateTheme(_ context.Context, p domain.Principal, _ service.GenerateThemeParams) (*service.GenerationResult, error) {
	s.calls++
	s.lastPrincipal = p
	return s.result, s.err
}

func (s *stubService) Refine(_ context.Context, p domain.Principal, _ service.RefineParams) (*service.GenerationResult, error) {
	s.calls++
	s.lastPrincipal = p
	return s.result, s.err
}

func (s *stubService) Variations(_ context.Context, p domain.Principal, _ service.VariationsParams) (*service.GenerationResult, error) {
	s.calls++
	s.lastPrincipal = p
	return s.result, s.err
}

func (s *stubService) History(_ context.Context, p domain.Principal, _ int32) ([]domain.Generation, error) {
	s.calls++
	s.lastPrincipal = p
	return s.history, s.err
}

func (s *stubService) Usage(_ context.Context, p domain.Principal) (domain.QuotaUsage, error) {
	s.calls++
	s.lastPrincipal = p
	return s.usage, s.err
}

func (s *stubService) UsageFor(_ context.Context, userID, email string) (domain.QuotaUsage, error) {
	s.calls++
	s.lastUserID = userID
	s.lastEmail = email
	return s.usage, s.err
}

var _ service.GenerationService = (*stubService)(nil)

// =============================================================================
// Helpers
// =============================================================================

var testPrincipal = domain.Principal{UID: "user-1", Email: "user@example.com"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nfakedata"))
}

// authedRequest builds a request carrying the test principal, as the auth
// middleware would after verifying a token.
func authedRequest(t *testing.T, method, target string, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(auth.SetPrincipal(req.Context(), &testPrincipal))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// =============================================================================
// Error Mapping
// =============================================================================

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ELIMIT, http.StatusTooManyRequests},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, handler.ErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestErrorResponseShape(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generations/theme", nil)

	handler.ErrorResponse(rec, req, testLogger(), domain.QuotaExceeded("service.theme", 10))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody(t, rec)
	assert.Equal(t, "You have reached your daily generation limit of 10 runs.", body["error"])
}

func TestErrorResponseMasksInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/generations", nil)

	handler.ErrorResponse(rec, req, testLogger(),
		domain.Internal(fmt.Errorf("pq: connection refused"), "repository.list", "list failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.NotContains(t, body["error"], "connection refused")
}

// =============================================================================
// Generation Endpoints
// =============================================================================

func TestGenerateTheme(t *testing.T) {
	svc := &stubService{result: &service.GenerationResult{
		Generation: domain.Generation{ID: uuid.New(), UserID: testPrincipal.UID, Kind: domain.GenerationKindTheme},
		Images:     []domain.ImagePayload{{Data: []byte("img"), ContentType: "image/png"}},
	}}
	h := handler.NewGenerationHandler(svc, testLogger())

	payload := fmt.Sprintf(`{"photoDataUri": %q, "template": "Luxury"}`, testDataURI())
	rec := httptest.NewRecorder()
	h.GenerateTheme(rec, authedRequest(t, http.MethodPost, "/api/generations/theme", payload))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	uri, ok := body["generatedPhotoDataUri"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	assert.Equal(t, testPrincipal, svc.lastPrincipal)
}

func TestGenerateThemeRequiresAuth(t *testing.T) {
	svc := &stubService{}
	h := handler.NewGenerationHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generations/theme", strings.NewReader("{}"))
	h.GenerateTheme(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestGenerateThemeInvalidBody(t *testing.T) {
	svc := &stubService{}
	h := handler.NewGenerationHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.GenerateTheme(rec, authedRequest(t, http.MethodPost, "/api/generations/theme", "{not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestGenerateThemeInvalidDataURI(t *testing.T) {
	svc := &stubService{}
	h := handler.NewGenerationHandler(svc, testLogger())

	payload := `{"photoDataUri": "https://example.com/cat.png", "template": "Luxury"}`
	rec := httptest.NewRecorder()
	h.GenerateTheme(rec, authedRequest(t, http.MethodPost, "/api/generations/theme", payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestGenerateThemeQuotaExceeded(t *testing.T) {
	svc := &stubService{err: domain.QuotaExceeded("service.generate", 10)}
	h := handler.NewGenerationHandler(svc, testLogger())

	payload := fmt.Sprintf(`{"photoDataUri": %q, "template": "Luxury"}`, testDataURI())
	rec := httptest.NewRecorder()
	h.GenerateTheme(rec, authedRequest(t, http.MethodPost, "/api/generations/theme", payload))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "daily generation limit")
}

func TestRefine(t *testing.T) {
	svc := &stubService{result: &service.GenerationResult{
		Images: []domain.ImagePayload{{Data: []byte("img"), ContentType: "image/webp"}},
	}}
	h := handler.NewGenerationHandler(svc, testLogger())

	payload := fmt.Sprintf(`{"photoDataUri": %q, "description": "make it moodier"}`, testDataURI())
	rec := httptest.NewRecorder()
	h.Refine(rec, authedRequest(t, http.MethodPost, "/api/generations/refine", payload))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	uri, ok := body["generatedPhotoDataUri"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(uri, "data:image/webp;base64,"))
}

func TestVariations(t *testing.T) {
	svc := &stubService{result: &service.GenerationResult{
		Generation: domain.Generation{Kind: domain.GenerationKindVariations},
		Images: []domain.ImagePayload{
			{Data: []byte("a"), ContentType: "image/png"},
			{Data: []byte("b"), ContentType: "image/png"},
			{Data: []byte("c"), ContentType: "image/png"},
		},
	}}
	h := handler.NewGenerationHandler(svc, testLogger())

	payload := fmt.Sprintf(`{"photoDataUri": %q, "angles": ["top-down", "side-view", "45-degree"]}`, testDataURI())
	rec := httptest.NewRecorder()
	h.Variations(rec, authedRequest(t, http.MethodPost, "/api/generations/variations", payload))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	variations, ok := body["variations"].([]interface{})
	require.True(t, ok)
	assert.Len(t, variations, 3)
}

func TestSuggestIdeas(t *testing.T) {
	svc := &stubService{ideas: []domain.Idea{
		{ShortPhrase: "Sleek & Modern", DetailedPrompt: "A minimalist studio scene"},
		{ShortPhrase: "Golden Hour Glow", DetailedPrompt: "Warm backlit scene"},
		{ShortPhrase: "Floating in Space", DetailedPrompt: "Product suspended mid-air"},
	}}
	h := handler.NewGenerationHandler(svc, testLogger())

	payload := fmt.Sprintf(`{"photoDataUri": %q, "template": "Minimalist"}`, testDataURI())
	rec := httptest.NewRecorder()
	h.SuggestIdeas(rec, authedRequest(t, http.MethodPost, "/api/generations/ideas", payload))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	ideas, ok := body["ideas"].([]interface{})
	require.True(t, ok)
	require.Len(t, ideas, 3)
	first, ok := ideas[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Sleek & Modern", first["shortPhrase"])
}

func TestHistory(t *testing.T) {
	svc := &stubService{history: []domain.Generation{
		{ID: uuid.New(), UserID: testPrincipal.UID, Kind: domain.GenerationKindTheme, Status: domain.GenerationStatusSuccess},
	}}
	h := handler.NewGenerationHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.History(rec, authedRequest(t, http.MethodGet, "/api/generations", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	generations, ok := body["generations"].([]interface{})
	require.True(t, ok)
	assert.Len(t, generations, 1)
}

// =============================================================================
// Quota and Admin Endpoints
// =============================================================================

func TestQuotaUsage(t *testing.T) {
	svc := &stubService{usage: domain.QuotaUsage{Used: 3, Limit: 10, Remaining: 7, ResetDate: "2026-08-31"}}
	h := handler.NewQuotaHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Usage(rec, authedRequest(t, http.MethodGet, "/api/quota", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["used"])
	assert.Equal(t, float64(10), body["limit"])
	assert.Equal(t, float64(7), body["remaining"])
}

func TestQuotaUsageRequiresAuth(t *testing.T) {
	h := handler.NewQuotaHandler(&stubService{}, testLogger())

	rec := httptest.NewRecorder()
	h.Usage(rec, httptest.NewRequest(http.MethodGet, "/api/quota", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUserQuota(t *testing.T) {
	svc := &stubService{usage: domain.QuotaUsage{Used: 1, Limit: 25, Remaining: 24, ResetDate: "2026-08-31"}}
	h := handler.NewAdminHandler(svc, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/admin/users/{uid}/quota", h.UserQuota)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/users/user-42/quota?email=vip%40example.com", nil)
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", svc.lastUserID)
	assert.Equal(t, "vip@example.com", svc.lastEmail)
	body := decodeBody(t, rec)
	assert.Equal(t, "user-42", body["userId"])
	usage, ok := body["usage"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(25), usage["limit"])
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
}
