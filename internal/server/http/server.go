// Package http serves the runtime's REST and streaming surface: workspace
// CRUD and deploy/stop lifecycle, SSE chat/council/summarize streams with
// mid-stream cancel, the operator websocket, usage summaries, and health.
// Handlers stay thin; every rule lives behind the injected subsystems.
package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/ports"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/runtime"
	"github.com/Drakonis96/optimAIzer-sub001/internal/agent/workspace"
	"github.com/Drakonis96/optimAIzer-sub001/internal/logging"
	"github.com/Drakonis96/optimAIzer-sub001/internal/observability"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/streaming"
	"github.com/Drakonis96/optimAIzer-sub001/internal/usage"
	id "github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

const (
	// DefaultReadHeaderTimeout bounds header parsing. The server sets no
	// write timeout because SSE streams stay open as long as the model
	// keeps talking.
	DefaultReadHeaderTimeout = 10 * time.Second

	userHeader      = "X-User-ID"
	requestIDHeader = "X-Request-ID"
	defaultUserID   = "local"
)

// Identity resolves the acting user for a request. Session authentication
// terminates in front of this server; the default trusts the forwarded
// user header and falls back to a fixed id for single-user deployments.
type Identity func(r *http.Request) string

// HeaderIdentity reads the forwarded user header.
func HeaderIdentity(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(userHeader)); user != "" {
		return user
	}
	return defaultUserID
}

// Config carries the HTTP surface settings.
type Config struct {
	Port       int
	CORSOrigin string
	Version    string

	// TelegramBaseURL is reported by the health endpoint; empty means the
	// public Bot API.
	TelegramBaseURL string
}

func (c Config) withDefaults() Config {
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = "*"
	}
	return c
}

// AgentManager is the runtime surface the server drives. *runtime.Manager
// implements it.
type AgentManager interface {
	Deploy(ctx context.Context, cfg workspace.AgentConfig, userID string) error
	Stop(agentID string) bool
	Running(agentID string) bool
	ListRunning() []string
	ResolveApproval(requestID string, approved bool, actor, note string) bool
	PendingApprovals() []ports.ApprovalRequest
}

// Deps are the subsystems the handlers call into. Usage is optional; the
// rest are required.
type Deps struct {
	Store     store.Store
	Workspace *workspace.Workspace
	Manager   AgentManager
	Streams   *streaming.Dispatcher
	Providers runtime.ProviderFactory
	Usage     *usage.Accountant
	Hub       *OperatorHub
	Identity  Identity
	Logger    logging.Logger
}

// Server hosts the gin engine and the operator hub. Build with New, run
// with Start, stop with Shutdown.
type Server struct {
	config  Config
	deps    Deps
	logger  logging.Logger
	engine  *gin.Engine
	server  *http.Server
	hub     *OperatorHub
	started time.Time
}

// New wires the routes. The manager is bound to the operator hub as the
// decision router, so a hub registered as an approval prompter before the
// manager existed starts resolving as soon as the server is built.
func New(config Config, deps Deps) (*Server, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("http server needs a store")
	case deps.Workspace == nil:
		return nil, fmt.Errorf("http server needs a workspace")
	case deps.Manager == nil:
		return nil, fmt.Errorf("http server needs an agent manager")
	case deps.Streams == nil:
		return nil, fmt.Errorf("http server needs a stream dispatcher")
	case deps.Providers == nil:
		return nil, fmt.Errorf("http server needs a provider factory")
	}
	if deps.Identity == nil {
		deps.Identity = HeaderIdentity
	}
	logger := logging.OrNop(deps.Logger)
	if deps.Hub == nil {
		deps.Hub = NewOperatorHub(logger)
	}
	deps.Hub.BindRouter(deps.Manager)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:  config.withDefaults(),
		deps:    deps,
		logger:  logger,
		engine:  engine,
		hub:     deps.Hub,
		started: time.Now(),
	}
	engine.Use(s.identityMiddleware())
	engine.Use(s.traceMiddleware())
	engine.Use(s.accessLog())
	engine.Use(cors.New(s.corsConfig()))
	s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           engine,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	return s, nil
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", userHeader, requestIDHeader, "Last-Event-ID"},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}
	if s.config.CORSOrigin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = strings.Split(s.config.CORSOrigin, ",")
	}
	return cfg
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/ws/operator", s.hub.handleConnect)

	api := s.engine.Group("/api")
	{
		agents := api.Group("/agents")
		{
			agents.GET("", s.handleListAgents)
			agents.POST("", s.handleSaveAgent)
			agents.GET("/:id", s.handleGetAgent)
			agents.PUT("/:id", s.handleSaveAgent)
			agents.DELETE("/:id", s.handleDeleteAgent)
			agents.POST("/:id/deploy", s.handleDeployAgent)
			agents.POST("/:id/stop", s.handleStopAgent)
		}
		api.POST("/chat/stream", s.handleChatStream)
		api.POST("/chat/cancel", s.handleCancelStream)
		api.POST("/council/stream", s.handleCouncilStream)
		api.POST("/summarize/stream", s.handleSummarizeStream)
		api.GET("/approvals", s.handlePendingApprovals)
		api.GET("/usage", s.handleUsage)
	}
}

// identityMiddleware stamps the acting user and a request id into the
// request context so logs and usage rows attribute correctly downstream.
// The effective request id is echoed back for client-side correlation.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := id.WithUserID(c.Request.Context(), s.deps.Identity(c.Request))
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid != "" {
			ctx = id.WithRequestID(ctx, rid)
		} else {
			ctx, rid = id.EnsureRequestID(ctx, id.NewRequestID)
		}
		c.Header(requestIDHeader, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// traceMiddleware opens one span per request. It runs after the identity
// middleware so the span picks up the user and request ids.
func (s *Server) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanHTTPServer,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http %s %s -> %d in %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub exposes the operator hub so bootstrap can register it as an approval
// surface on the agent manager.
func (s *Server) Hub() *OperatorHub { return s.hub }

// Start serves until Shutdown. A closed-server return is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown disconnects operator sockets and drains in-flight requests
// within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
