package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/analyzer"
	"github.com/contextbridge/backend/internal/capture"
	"github.com/contextbridge/backend/internal/extract"
	"github.com/contextbridge/backend/internal/infrastructure/monitoring"
	"github.com/contextbridge/backend/internal/instruction"
	"github.com/contextbridge/backend/internal/logging"
	"github.com/contextbridge/backend/internal/store"
	"github.com/contextbridge/backend/internal/types"
	"github.com/contextbridge/backend/internal/ws"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	contexts *store.Contexts
	capture  *capture.Service
	analyzer analyzer.Analyzer
	metrics  *monitoring.Metrics
	hub      *ws.Handler
	log      *logging.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(
	contexts *store.Contexts,
	captureSvc *capture.Service,
	analyze analyzer.Analyzer,
	metrics *monitoring.Metrics,
	hub *ws.Handler,
	log *logging.Logger,
) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		contexts: contexts,
		capture:  captureSvc,
		analyzer: analyze,
		metrics:  metrics,
		hub:      hub,
		log:      log.WithComponent("http"),
	}
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Context Bridge",
		"version": "1.0.0",
		"endpoints": gin.H{
			"current-context": "GET /current-context - Get current page context",
			"screenshot":      "POST /screenshot - Store page screenshot",
			"agent-context":   "GET /agent/context - Agent endpoint for context",
			"agent-analysis":  "GET /agent/analysis - Analyze stored context",
			"stream":          "GET /ws - WebSocket for real-time updates",
		},
	})
}

// Health reports service health and a metrics snapshot.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"connections": h.hub.ConnectionCount(),
		"contexts":    h.contexts.Len(),
		"metrics":     h.metrics.GetSnapshot(),
	})
}

// GetCurrentContext returns the stored context for a URL. Before any
// context arrives it returns a placeholder rather than a 404 so frontend
// polling stays simple.
func (h *Handlers) GetCurrentContext(c *gin.Context) {
	url := c.Query("url")

	if ctx, ok := h.contexts.Get(url); ok {
		c.JSON(http.StatusOK, ctx)
		return
	}

	c.JSON(http.StatusOK, types.PageContext{
		URL:       url,
		Title:     "No context received yet",
		Timestamp: types.NowMillis(),
		DOM: &types.DOMData{
			Text:   "Waiting for frontend to send context...",
			Forms:  []types.FormData{},
			Inputs: []types.InputField{},
		},
		Metadata: map[string]any{"status": "waiting_for_context"},
	})
}

// ReceiveContext stores a context snapshot posted by the frontend. A body
// carrying raw HTML instead of a pre-built DOM section is parsed
// server-side.
func (h *Handlers) ReceiveContext(c *gin.Context) {
	var body struct {
		types.PageContext
		HTML string `json:"html,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid context data: " + err.Error()})
		return
	}
	if body.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	pageCtx := body.PageContext
	if body.HTML != "" && pageCtx.DOM == nil {
		extracted, err := extract.PageContext(body.URL, body.HTML)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid html: " + err.Error()})
			return
		}
		extracted.Viewport = pageCtx.Viewport
		if pageCtx.Title != "" {
			extracted.Title = pageCtx.Title
		}
		pageCtx = *extracted
	}
	if pageCtx.Timestamp == 0 {
		pageCtx.Timestamp = types.NowMillis()
	}

	h.contexts.Put(&pageCtx)
	h.metrics.RecordContext()
	h.log.Debug("context received",
		zap.String("url", pageCtx.URL),
		zap.String("title", pageCtx.Title))

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Context received"})
}

// ReceiveScreenshot stores a screenshot posted by the frontend.
func (h *Handlers) ReceiveScreenshot(c *gin.Context) {
	var body struct {
		URL        string `json:"url"`
		Screenshot string `json:"screenshot"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid screenshot data: " + err.Error()})
		return
	}
	if body.Screenshot == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "screenshot data is required"})
		return
	}

	if err := h.capture.Store(body.URL, body.Screenshot); err != nil {
		h.metrics.RecordScreenshot(false)
		status := http.StatusBadRequest
		if errors.Is(err, capture.ErrNotAllowed) || errors.Is(err, capture.ErrDisabled) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.metrics.RecordScreenshot(true)
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   "Screenshot received and stored",
		"url":       body.URL,
		"size":      len(body.Screenshot),
		"timestamp": types.NowMillis(),
	})
}

// AgentContext returns stored context for agent code, 404 when nothing
// has arrived yet.
func (h *Handlers) AgentContext(c *gin.Context) {
	url := c.Query("url")

	ctx, ok := h.contexts.Get(url)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no context available; make sure the frontend is sending context data",
		})
		return
	}
	c.JSON(http.StatusOK, ctx)
}

// AgentScreenshot returns the latest stored screenshot for a URL.
func (h *Handlers) AgentScreenshot(c *gin.Context) {
	url := c.Query("url")

	shot, err := h.capture.Latest(url)
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no screenshot found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"screenshot": shot,
		"url":        url,
		"size":       len(shot),
		"timestamp":  types.NowMillis(),
	})
}

// AgentContextWithScreenshot returns both, degrading to context-only when
// no screenshot exists.
func (h *Handlers) AgentContextWithScreenshot(c *gin.Context) {
	url := c.Query("url")

	ctx, ok := h.contexts.Get(url)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no context available; make sure the frontend is sending context data",
		})
		return
	}

	resp := types.ContextResponse{Context: *ctx}
	if shot, err := h.capture.Latest(url); err == nil {
		resp.Screenshot = shot
	}
	c.JSON(http.StatusOK, resp)
}

// AgentAnalysis runs the analyzer over the stored context.
func (h *Handlers) AgentAnalysis(c *gin.Context) {
	url := c.Query("url")

	ctx, ok := h.contexts.Get(url)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no context available to analyze"})
		return
	}

	analysis := h.analyzer.Analyze(ctx)
	h.metrics.RecordAnalysis()
	c.JSON(http.StatusOK, analysis)
}

// AgentInstructions analyzes the stored context and returns generated
// instructions; push=true also broadcasts them to connected clients.
func (h *Handlers) AgentInstructions(c *gin.Context) {
	url := c.Query("url")
	push := c.Query("push") == "true"

	ctx, ok := h.contexts.Get(url)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no context available to analyze"})
		return
	}

	analysis := h.analyzer.Analyze(ctx)
	h.metrics.RecordAnalysis()
	instructions := h.analyzer.Instructions(ctx, analysis)

	delivered := 0
	if push {
		for _, instr := range instructions {
			delivered += h.hub.Broadcast(instr)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis":     analysis,
		"instructions": instructions,
		"delivered":    delivered,
	})
}

// PushInstruction validates an instruction and broadcasts it to all
// connected clients. The body goes through the strict wire decoder, so
// malformed or unknown instructions never reach a frontend.
func (h *Handlers) PushInstruction(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	instr, err := instruction.Decode(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	delivered := h.hub.Broadcast(instr)
	h.log.Info("instruction pushed",
		zap.String("id", instr.ID),
		zap.String("type", string(instr.Type)),
		zap.Int("delivered", delivered))

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"id":        instr.ID,
		"delivered": delivered,
	})
}
