package http

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

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/coordinator"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/identity"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/overflow"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/service/intake"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/sizelimit"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store/memory"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/view"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/api"
)

func newTestServer(t *testing.T) (http.Handler, *memory.KeyValue) {
	t.Helper()
	logger := zap.NewNop()
	kv := memory.NewKeyValue()
	blobs := memory.NewBlob()
	tables := store.DefaultTables()
	enforcer := sizelimit.NewEnforcer(sizelimit.DefaultLimits(), logger)
	ov := overflow.NewAdapter(blobs, enforcer, 50*1024, logger)

	svc := intake.NewService(intake.Config{
		KeyValue:  kv,
		Tables:    tables,
		Overflow:  ov,
		Coord:     coordinator.New(kv, tables, logger),
		Assembler: view.NewAssembler(kv, tables, ov, logger),
		Identity:  identity.ContextProvider{},
		Logger:    logger,
	})

	router := NewRouter(RouterConfig{
		Handlers: NewHandlers(svc, logger),
		KeyValue: kv,
		Logger:   logger,
	})
	return router, kv
}

func bearerToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         "user-1",
		"zoneinfo":    "zone-a",
		"custom:role": role,
		"email":       "ada@example.com",
		"exp":         time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + raw
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	handler, _ := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/me/drafts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSaveAndFetchParticipant(t *testing.T) {
	handler, _ := newTestServer(t)
	token := bearerToken(t, "applicant")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/participant", token, api.SaveParticipantRequest{
		FormData:    map[string]any{"full_name": "Ada"},
		CurrentStep: 2,
		Status:      "draft",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved api.SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, 1, saved.Version)
	assert.NotEmpty(t, saved.AppID)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/participant", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ada")
}

func TestSaveParticipant_MissingFormDataRejected(t *testing.T) {
	handler, _ := newTestServer(t)
	token := bearerToken(t, "applicant")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/participant", token, map[string]any{
		"current_step": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveApplication_ForbiddenForCoApplicant(t *testing.T) {
	handler, _ := newTestServer(t)
	token := bearerToken(t, "coapplicant")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/application", token, api.SaveApplicationRequest{
		ApplicationInfo: map[string]any{"building": "123 Main St"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViewEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)
	token := bearerToken(t, "applicant")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/participant", token, api.SaveParticipantRequest{
		FormData:    map[string]any{"full_name": "Ada"},
		CurrentStep: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/application/view", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "appid")
}

func TestHealthzUnavailable(t *testing.T) {
	handler, kv := newTestServer(t)
	kv.SetError("Ping", assert.AnError)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
