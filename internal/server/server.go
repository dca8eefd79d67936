package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/audit"
	"github.com/dagbolade/clipboard-guardian/internal/auth"
	"github.com/dagbolade/clipboard-guardian/internal/clipboard"
	"github.com/dagbolade/clipboard-guardian/internal/mediation"
	"github.com/dagbolade/clipboard-guardian/internal/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

type Server struct {
	echo   *echo.Echo
	config Config
}

type Config struct {
	BindAddr        string
	Port            int
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout int
	AllowOrigins    []string
}

// Guard is the mediated clipboard accessor exposed to actors.
type Guard interface {
	HandleRead(ctx context.Context, actorID, actorLabel string) (clipboard.Content, mediation.Outcome)
	HandleWrite(ctx context.Context, actorID, actorLabel string, c clipboard.Content) (mediation.Outcome, error)
}

type HistoryReader interface {
	Recent(ctx context.Context, n int) ([]audit.Entry, error)
}

type Protection interface {
	Enabled() bool
	Set(enabled bool) error
}

// WSServer upgrades approver connections. prompt.Hub implements it.
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, approverID string) error
}

type Deps struct {
	Guard      Guard
	Channel    *approval.Channel
	History    HistoryReader
	Protection Protection
	Hub        WSServer
	Auth       *auth.Manager
	AuthUsers  string
	Metrics    *metrics.Collector
	// DecisionTimeout is reported to approvers as each request's expiry.
	DecisionTimeout time.Duration
}

func New(cfg Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		config: cfg,
	}

	s.setupMiddleware()
	s.setupRoutes(deps)

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := s.config.Addr()
	log.Info().Str("addr", addr).Msg("starting HTTP server")

	s.echo.Server.ReadTimeout = time.Duration(s.config.ReadTimeout) * time.Second
	s.echo.Server.WriteTimeout = time.Duration(s.config.WriteTimeout) * time.Second

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())

	origins := s.config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:     []string{"Content-Type", "Authorization", auth.ActorHeader, auth.ActorLabelHeader},
		AllowCredentials: true,
	}))
}

func (s *Server) setupRoutes(deps Deps) {
	authManager := deps.Auth
	if authManager == nil {
		authManager = auth.NewManager(auth.Config{})
	}

	authHandler := auth.NewHandler(authManager, deps.AuthUsers)
	decisionHandler := NewDecisionHandler(deps.Channel, deps.DecisionTimeout)
	historyHandler := NewHistoryHandler(deps.History)
	protectionHandler := NewProtectionHandler(deps.Protection)
	clipboardHandler := NewClipboardHandler(deps.Guard)

	// Public endpoints (no auth required)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	s.echo.POST("/login", authHandler.Login)

	protected := s.echo.Group("")
	protected.Use(authManager.Middleware())
	protected.GET("/me", authHandler.Me)

	approver := protected.Group("", authManager.RequireRole(auth.RoleApprover))
	approver.GET("/pending", decisionHandler.GetPending)
	approver.POST("/requests/:id/decision", decisionHandler.Decide)
	approver.GET("/history", historyHandler.GetHistory)
	approver.GET("/protection", protectionHandler.Get)
	approver.PUT("/protection", protectionHandler.Put)
	if deps.Hub != nil {
		approver.GET("/ws", func(c echo.Context) error {
			// Upgrade failures are answered and logged by the hub.
			_ = deps.Hub.ServeWS(c.Response(), c.Request(), auth.PrincipalFrom(c).Subject)
			return nil
		})
	}

	actor := protected.Group("", authManager.RequireRole(auth.RoleActor))
	actor.GET("/clipboard", clipboardHandler.Read)
	actor.PUT("/clipboard", clipboardHandler.Write)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
