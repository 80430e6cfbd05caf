package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptbox/scriptbox/internal/config"
	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/sandbox"
)

// One server per test binary: the metrics collector registers with the
// global Prometheus registry.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.Sandbox.PoolSize = 1

	srv, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	return srv
}

func TestServerWiring(t *testing.T) {
	srv := newTestServer(t)
	router := srv.Router()

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("capabilities include built-ins", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/capabilities", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Capabilities []struct {
				ID string `json:"id"`
			} `json:"capabilities"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		ids := make([]string, 0, len(resp.Capabilities))
		for _, c := range resp.Capabilities {
			ids = append(ids, c.ID)
		}
		assert.ElementsMatch(t, []string{"store", "fetch", "system"}, ids)
	})

	t.Run("execute", func(t *testing.T) {
		body, _ := json.Marshal(map[string]interface{}{
			"source": "system.info().version",
		})
		req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var outcome sandbox.Outcome
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
		require.True(t, outcome.Success, "message: %s", outcome.Message)
		assert.Equal(t, Version, outcome.Value)
	})

	t.Run("prometheus endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "scriptbox_http_requests_total")
	})

	t.Run("request id header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
