package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptbox/scriptbox/internal/capability"
	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/monitoring"
	"github.com/scriptbox/scriptbox/internal/sandbox"
)

var testMetrics = monitoring.NewMetrics()

type serverMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Message string          `json:"message"`
	Outcome sandbox.Outcome `json:"outcome"`
}

func newTestConn(t *testing.T) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := capability.NewRegistry()
	cfg := sandbox.DefaultConfig()
	cfg.DeadlineMs = 2000

	pool, err := sandbox.NewPool(cfg, registry, logging.NewNop(), nil, 2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	handler := NewHandler(pool, testMetrics, logging.NewNop())

	router := gin.New()
	router.GET("/stream", handler.HandleConnection)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Welcome message arrives first on every connection.
	var welcome serverMessage
	require.NoError(t, readMessage(t, conn, &welcome))
	require.Equal(t, "system", welcome.Type)

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, v interface{}) error {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func TestStreamExecute(t *testing.T) {
	conn := newTestConn(t)

	require.NoError(t, conn.WriteJSON(Message{
		Type:   "execute",
		Source: "2 + 3",
	}))

	var accepted serverMessage
	require.NoError(t, readMessage(t, conn, &accepted))
	require.Equal(t, "accepted", accepted.Type)
	require.NotEmpty(t, accepted.ID)

	var result serverMessage
	require.NoError(t, readMessage(t, conn, &result))
	require.Equal(t, "outcome", result.Type)
	assert.Equal(t, accepted.ID, result.Outcome.ID)
	assert.True(t, result.Outcome.Success)
	assert.EqualValues(t, 5, result.Outcome.Value)
}

func TestStreamConcurrentExecutions(t *testing.T) {
	conn := newTestConn(t)

	// Submit a slow script then a fast one; the fast outcome should not
	// wait for the slow one since the pool has two members.
	require.NoError(t, conn.WriteJSON(Message{
		Type:   "execute",
		Source: "var t = Date.now(); while (Date.now() - t < 500) {}; 'slow'",
	}))
	require.NoError(t, conn.WriteJSON(Message{
		Type:   "execute",
		Source: "'fast'",
	}))

	ids := map[string]bool{}
	outcomes := map[string]interface{}{}
	for i := 0; i < 4; i++ {
		var msg serverMessage
		require.NoError(t, readMessage(t, conn, &msg))
		switch msg.Type {
		case "accepted":
			ids[msg.ID] = true
		case "outcome":
			outcomes[msg.Outcome.ID] = msg.Outcome.Value
			assert.True(t, ids[msg.Outcome.ID], "outcome for unknown id %s", msg.Outcome.ID)
		default:
			t.Fatalf("unexpected message type %q", msg.Type)
		}
	}

	require.Len(t, outcomes, 2)
	values := make([]interface{}, 0, 2)
	for _, v := range outcomes {
		values = append(values, v)
	}
	assert.ElementsMatch(t, []interface{}{"slow", "fast"}, values)
}

func TestStreamPing(t *testing.T) {
	conn := newTestConn(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))

	var msg serverMessage
	require.NoError(t, readMessage(t, conn, &msg))
	assert.Equal(t, "pong", msg.Type)
}

func TestStreamTerminate(t *testing.T) {
	conn := newTestConn(t)

	require.NoError(t, conn.WriteJSON(Message{
		Type:   "execute",
		Source: "while (true) {}",
	}))

	var accepted serverMessage
	require.NoError(t, readMessage(t, conn, &accepted))
	require.Equal(t, "accepted", accepted.Type)

	require.NoError(t, conn.WriteJSON(Message{
		Type: "terminate",
		ID:   accepted.ID,
	}))

	seen := map[string]serverMessage{}
	for i := 0; i < 2; i++ {
		var msg serverMessage
		require.NoError(t, readMessage(t, conn, &msg))
		seen[msg.Type] = msg
	}

	require.Contains(t, seen, "terminated")
	require.Contains(t, seen, "outcome")
	outcome := seen["outcome"].Outcome
	assert.Equal(t, accepted.ID, outcome.ID)
	assert.False(t, outcome.Success)
	assert.Equal(t, sandbox.KindTerminated, outcome.ErrorKind)
}

func TestStreamUnknownType(t *testing.T) {
	conn := newTestConn(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "dance"}))

	var msg serverMessage
	require.NoError(t, readMessage(t, conn, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Message, "unknown message type")
}

func TestStreamExecuteRejectsEmptySource(t *testing.T) {
	conn := newTestConn(t)

	require.NoError(t, conn.WriteJSON(Message{Type: "execute"}))

	var msg serverMessage
	require.NoError(t, readMessage(t, conn, &msg))
	assert.Equal(t, "error", msg.Type)
}
