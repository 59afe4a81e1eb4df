package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/analyzer"
	"github.com/contextbridge/backend/internal/api/middleware"
	"github.com/contextbridge/backend/internal/capture"
	apihttp "github.com/contextbridge/backend/internal/http"
	"github.com/contextbridge/backend/internal/infrastructure/config"
	"github.com/contextbridge/backend/internal/infrastructure/monitoring"
	"github.com/contextbridge/backend/internal/logging"
	"github.com/contextbridge/backend/internal/store"
	"github.com/contextbridge/backend/internal/whitelist"
	"github.com/contextbridge/backend/internal/ws"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg      *config.Config
	router   *gin.Engine
	httpSrv  *http.Server
	log      *logging.Logger
	metrics  *monitoring.Metrics
	contexts *store.Contexts
	capture  *capture.Service
	hub      *ws.Handler
}

// New assembles the bridge server from configuration.
func New(cfg *config.Config, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewDefault()
	}

	metrics := monitoring.New()
	contexts := store.NewContexts()

	matcher := whitelist.New(cfg.Bridge.WhitelistedPages, log)
	captureSvc := capture.New(capture.Config{
		Enabled:  cfg.Bridge.EnableScreenshots,
		Defaults: cfg.Bridge.ScreenshotOptions(),
	}, matcher, log)

	rules := analyzer.NewRules(log)
	hub := ws.NewHandler(contexts, captureSvc, metrics, log)
	handlers := apihttp.NewHandlers(contexts, captureSvc, rules, metrics, hub, log)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.BodyLimit(middleware.MaxBodySize))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Frontend-facing intake
	router.GET("/current-context", handlers.GetCurrentContext)
	router.POST("/current-context", handlers.ReceiveContext)
	router.POST("/screenshot", handlers.ReceiveScreenshot)

	// Agent-facing endpoints
	router.GET("/agent/context", handlers.AgentContext)
	router.GET("/agent/screenshot", handlers.AgentScreenshot)
	router.GET("/agent/context-with-screenshot", handlers.AgentContextWithScreenshot)
	router.GET("/agent/analysis", handlers.AgentAnalysis)
	router.GET("/agent/instructions", handlers.AgentInstructions)
	router.POST("/agent/instructions", handlers.PushInstruction)

	// WebSocket
	router.GET("/ws", hub.HandleConnection)

	return &Server{
		cfg:      cfg,
		router:   router,
		log:      log.WithComponent("server"),
		metrics:  metrics,
		contexts: contexts,
		capture:  captureSvc,
		hub:      hub,
	}
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting bridge server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.log.Info("shutting down")
	return s.httpSrv.Shutdown(ctx)
}
