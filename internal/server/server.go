// Package server exposes the HTTP surface: the streaming chat endpoint
// and the form read/update endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/formweaver/formweaver/internal/agent/orchestrator"
	"github.com/formweaver/formweaver/internal/agent/tools"
	"github.com/formweaver/formweaver/internal/common/config"
	"github.com/formweaver/formweaver/internal/common/logger"
	"github.com/formweaver/formweaver/internal/form/service"
)

// Server wires the HTTP routes over the orchestrator and form service.
type Server struct {
	cfg      *config.ServerConfig
	engine   *gin.Engine
	http     *http.Server
	orch     *orchestrator.Orchestrator
	forms    *service.Service
	create   *tools.CreateForm
	verifier *Verifier
	limiter  *Limiter
	log      *logger.Logger
}

// New assembles the router. toolDeps also backs the non-streamed
// creation endpoint.
func New(cfg *config.Config, orch *orchestrator.Orchestrator, forms *service.Service, toolDeps *tools.Deps, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:      &cfg.Server,
		engine:   engine,
		orch:     orch,
		forms:    forms,
		create:   tools.NewCreateForm(toolDeps),
		verifier: NewVerifier(cfg.Auth.JWTSecret),
		limiter:  NewLimiter(cfg.Limits.TurnsPerDay),
		log:      log.WithFields(zap.String("component", "server")),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/", authMiddleware(s.verifier))
	api.POST("/chat", s.postChat)
	api.GET("/chat", s.getChat)
	api.POST("/forms/:id", s.postForm)
	api.PATCH("/forms/:id", s.patchForm)
	api.GET("/forms/:id", s.getForm)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	// WriteTimeout stays zero; it would cut off long-lived event
	// streams on /chat.
	s.http = &http.Server{
		Addr:        addr,
		Handler:     s.engine,
		ReadTimeout: s.cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
