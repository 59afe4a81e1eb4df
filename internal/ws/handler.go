package ws

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/capture"
	"github.com/contextbridge/backend/internal/infrastructure/monitoring"
	"github.com/contextbridge/backend/internal/instruction"
	"github.com/contextbridge/backend/internal/logging"
	"github.com/contextbridge/backend/internal/shared/id"
	"github.com/contextbridge/backend/internal/store"
	"github.com/contextbridge/backend/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks happen at the CORS layer
	},
}

// Handler manages WebSocket connections from frontend bridges.
type Handler struct {
	contexts *store.Contexts
	capture  *capture.Service
	metrics  *monitoring.Metrics
	log      *logging.Logger

	mu    sync.RWMutex
	conns map[string]*client
}

type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewHandler creates a WebSocket handler.
func NewHandler(contexts *store.Contexts, captureSvc *capture.Service, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		contexts: contexts,
		capture:  captureSvc,
		metrics:  metrics,
		log:      log.WithComponent("ws"),
		conns:    make(map[string]*client),
	}
}

// HandleConnection upgrades the request and serves the message loop.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := id.NewConnID().String()
	cl := &client{conn: conn}

	h.mu.Lock()
	h.conns[connID] = cl
	h.mu.Unlock()
	h.metrics.RecordConnection(1)
	h.log.Info("client connected", zap.String("conn_id", connID))

	defer func() {
		h.mu.Lock()
		delete(h.conns, connID)
		h.mu.Unlock()
		h.metrics.RecordConnection(-1)
		conn.Close()
		h.log.Info("client disconnected", zap.String("conn_id", connID))
	}()

	h.send(cl, types.NewMessage(types.MsgSystem, gin.H{
		"message": "Connected to Context Bridge",
	}))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}

		var msg types.Message
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			h.sendError(cl, "invalid message format")
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case types.MsgAuth:
			h.handleAuth(cl)
		case types.MsgContext:
			h.handleContext(cl, msg)
		case types.MsgScreenshot:
			h.handleScreenshot(cl, msg)
		case types.MsgPing:
			h.send(cl, types.NewMessage(types.MsgPong, nil))
		default:
			h.sendError(cl, "unknown message type: "+msg.Type)
		}
	}
}

// Broadcast pushes an instruction to every connected client and reports
// how many received it.
func (h *Handler) Broadcast(instr instruction.Instruction) int {
	envelope := types.NewMessage(types.MsgInstruction, instr)
	envelope.ID = id.NewMessageID().String()

	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns))
	for _, cl := range h.conns {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, cl := range clients {
		if err := h.send(cl, envelope); err != nil {
			h.metrics.RecordInstructionFailure(string(instr.Type))
			continue
		}
		delivered++
		h.metrics.RecordInstruction(string(instr.Type))
	}
	return delivered
}

// ConnectionCount returns the number of active connections.
func (h *Handler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Handler) handleAuth(cl *client) {
	// Token verification is delegated to the reverse proxy; the handshake
	// just acknowledges.
	h.send(cl, types.NewMessage(types.MsgAuthResponse, gin.H{
		"status": "success",
	}))
}

func (h *Handler) handleContext(cl *client, msg types.Message) {
	raw, err := sonic.Marshal(msg.Data)
	if err != nil {
		h.sendError(cl, "invalid context payload")
		return
	}

	var pageCtx types.PageContext
	if err := sonic.Unmarshal(raw, &pageCtx); err != nil || pageCtx.URL == "" {
		h.sendError(cl, "invalid context payload")
		return
	}

	h.contexts.Put(&pageCtx)
	h.metrics.RecordContext()
	h.log.Debug("context received",
		zap.String("url", pageCtx.URL),
		zap.String("title", pageCtx.Title))

	h.send(cl, types.NewMessage(types.MsgContextReceived, gin.H{
		"status": "success",
	}))
}

func (h *Handler) handleScreenshot(cl *client, msg types.Message) {
	var payload struct {
		URL        string `json:"url"`
		Screenshot string `json:"screenshot"`
	}
	raw, err := sonic.Marshal(msg.Data)
	if err == nil {
		err = sonic.Unmarshal(raw, &payload)
	}
	if err != nil || payload.Screenshot == "" {
		h.sendError(cl, "screenshot data required")
		return
	}

	if err := h.capture.Store(payload.URL, payload.Screenshot); err != nil {
		h.metrics.RecordScreenshot(false)
		h.sendError(cl, err.Error())
		return
	}

	h.metrics.RecordScreenshot(true)
	h.send(cl, types.NewMessage(types.MsgScreenshotAck, gin.H{
		"status": "success",
		"url":    payload.URL,
		"size":   len(payload.Screenshot),
	}))
}

func (h *Handler) send(cl *client, msg types.Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}

	cl.wmu.Lock()
	defer cl.wmu.Unlock()
	if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	h.metrics.RecordWSMessage("out", msg.Type)
	return nil
}

func (h *Handler) sendError(cl *client, message string) {
	h.send(cl, types.NewMessage(types.MsgError, gin.H{
		"message": message,
	}))
}
