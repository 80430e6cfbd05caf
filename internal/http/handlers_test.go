package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/monitoring"
	"github.com/scriptbox/scriptbox/internal/providers"
	"github.com/scriptbox/scriptbox/internal/sandbox"
)

var testMetrics = monitoring.NewMetrics()

func newTestRouter(t *testing.T) (*gin.Engine, *sandbox.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := capability.NewRegistry()
	require.NoError(t, registry.Register(providers.NewStore()))
	require.NoError(t, registry.Register(providers.NewSystem("test")))

	cfg := sandbox.DefaultConfig()
	cfg.DeadlineMs = 2000

	pool, err := sandbox.NewPool(cfg, registry, logging.NewNop(), nil, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	handlers := NewHandlers(pool, registry, testMetrics, logging.NewNop(), "test")

	router := gin.New()
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	router.GET("/capabilities", handlers.ListCapabilities)
	router.POST("/execute", handlers.Execute)
	router.POST("/executions/:id/terminate", handlers.Terminate)

	return router, pool
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRootAndHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var root map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, "scriptbox", root["service"])

	w = doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.NotNil(t, health["engine"])
}

func TestExecuteEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/execute", ExecuteRequest{
		Source: "6 * 7",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var outcome sandbox.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.True(t, outcome.Success)
	assert.EqualValues(t, 42, outcome.Value)
	assert.NotEmpty(t, outcome.ID)
}

func TestExecuteWithBindings(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/execute", ExecuteRequest{
		Source:   "greeting + ' world'",
		Bindings: map[string]interface{}{"greeting": "hello"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var outcome sandbox.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.True(t, outcome.Success)
	assert.Equal(t, "hello world", outcome.Value)
}

func TestExecuteScriptError(t *testing.T) {
	router, _ := newTestRouter(t)

	// Script failures are valid outcomes, not HTTP errors.
	w := doJSON(t, router, http.MethodPost, "/execute", ExecuteRequest{
		Source: "throw new Error('boom')",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var outcome sandbox.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.False(t, outcome.Success)
	assert.Equal(t, sandbox.KindRuntimeError, outcome.ErrorKind)
	assert.Contains(t, outcome.Message, "boom")
}

func TestExecuteRejectsMissingSource(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/execute", map[string]interface{}{
		"deadline_ms": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTerminateEndpointIdempotent(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/executions/exec_unknown/terminate", TerminateRequest{
		Reason: "Manual",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["terminated"])
	assert.Equal(t, "Manual", resp["reason"])
}

func TestTerminateDefaultsReason(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/executions/exec_x/terminate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Manual", resp["reason"])
}

func TestListCapabilities(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count        int `json:"count"`
		Capabilities []struct {
			ID         string `json:"id"`
			Operations []struct {
				ID string `json:"id"`
			} `json:"operations"`
		} `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	ids := make([]string, 0, resp.Count)
	for _, cap := range resp.Capabilities {
		ids = append(ids, cap.ID)
		assert.NotEmpty(t, cap.Operations)
	}
	assert.Contains(t, ids, "store")
	assert.Contains(t, ids, "system")
}

func TestCapabilityReachableOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/execute", ExecuteRequest{
		Source:    "store.set({key: 'color', value: 'blue'}); store.get({key: 'color'}).value",
		Namespace: "http-test",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var outcome sandbox.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	require.True(t, outcome.Success, "message: %s", outcome.Message)
	assert.Equal(t, "blue", outcome.Value)
}

func TestStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp["metrics"])
	assert.NotNil(t, resp["engine"])
}
