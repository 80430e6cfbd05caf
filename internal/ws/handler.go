package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/logging"
	"github.com/scriptbox/scriptbox/internal/monitoring"
	"github.com/scriptbox/scriptbox/internal/sandbox"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Restrict origins in production
	},
}

// Message is one inbound client message.
type Message struct {
	Type                string                 `json:"type"`
	ID                  string                 `json:"id,omitempty"`
	Source              string                 `json:"source,omitempty"`
	DeadlineMs          int64                  `json:"deadline_ms,omitempty"`
	Bindings            map[string]interface{} `json:"bindings,omitempty"`
	IncludeCapabilities *bool                  `json:"include_capabilities,omitempty"`
	Namespace           string                 `json:"namespace,omitempty"`
	Reason              string                 `json:"reason,omitempty"`
}

// Handler manages WebSocket connections.
type Handler struct {
	pool    *sandbox.Pool
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(pool *sandbox.Pool, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		pool:    pool,
		metrics: metrics,
		logger:  logger,
	}
}

// conn serializes writes; outcomes arrive from per-execution goroutines.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(data)
}

// HandleConnection handles WebSocket upgrade and messages.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	client := &conn{ws: ws}
	reqCtx := c.Request.Context()

	_ = client.send(gin.H{
		"type":    "system",
		"message": "connected to scriptbox",
	})

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "execute":
			h.handleExecute(reqCtx, client, msg, &wg)
		case "terminate":
			h.handleTerminate(client, msg)
		case "ping":
			h.reply(client, gin.H{"type": "pong"})
		default:
			h.sendError(client, "", "unknown message type")
		}
	}
}

func (h *Handler) handleExecute(reqCtx context.Context, client *conn, msg Message, wg *sync.WaitGroup) {
	mgr, err := h.pool.Acquire(reqCtx)
	if err != nil {
		h.sendError(client, "", err.Error())
		return
	}

	execID, done, err := mgr.Submit(msg.Source, sandbox.Options{
		DeadlineMs:          msg.DeadlineMs,
		InitialBindings:     msg.Bindings,
		IncludeCapabilities: msg.IncludeCapabilities,
		Namespace:           msg.Namespace,
	})
	if err != nil {
		h.pool.Release(mgr)
		h.sendError(client, "", err.Error())
		return
	}

	h.reply(client, gin.H{
		"type":      "accepted",
		"id":        execID.String(),
		"timestamp": time.Now().Unix(),
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer h.pool.Release(mgr)

		outcome := <-done
		h.metrics.RecordWSMessage("out", "outcome")
		if err := client.send(gin.H{
			"type":      "outcome",
			"outcome":   outcome,
			"timestamp": time.Now().Unix(),
		}); err != nil {
			h.logger.Warn("websocket outcome delivery failed",
				zap.String("execution_id", outcome.ID),
				zap.Error(err))
		}
	}()
}

func (h *Handler) handleTerminate(client *conn, msg Message) {
	if msg.ID == "" {
		h.sendError(client, "", "execution id required")
		return
	}

	reason := sandbox.TerminateReason(msg.Reason)
	if !reason.Valid() {
		reason = sandbox.ReasonManual
	}
	h.pool.Terminate(msg.ID, reason)

	h.reply(client, gin.H{
		"type":      "terminated",
		"id":        msg.ID,
		"reason":    string(reason),
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) reply(client *conn, data gin.H) {
	if t, ok := data["type"].(string); ok {
		h.metrics.RecordWSMessage("out", t)
	}
	_ = client.send(data)
}

func (h *Handler) sendError(client *conn, execID, msg string) {
	h.metrics.RecordWSMessage("out", "error")
	_ = client.send(gin.H{
		"type":      "error",
		"id":        execID,
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
