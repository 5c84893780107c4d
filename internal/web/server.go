// Package web serves the browser chat page and its JSON/SSE API on gin.
//
// Each browser gets its own conversation, tracked by a cookie. The page posts
// a message and reads the assistant reply back as a server-sent event stream
// of session events.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/bimmerbailey/streamchat/internal/config"
	"github.com/bimmerbailey/streamchat/internal/credential"
	"github.com/bimmerbailey/streamchat/internal/llm"
	"github.com/bimmerbailey/streamchat/internal/session"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// CookieName holds the conversation id of a browser.
const CookieName = "streamchat_session"

const shutdownTimeout = 5 * time.Second

// Server wires the conversation store, the credential resolver and the
// gateway into HTTP handlers.
type Server struct {
	cfg      *config.Config
	store    *session.Store
	resolver *credential.Resolver
	logger   *slog.Logger
	engine   *gin.Engine
}

// New builds the server and registers its routes.
func New(cfg *config.Config, store *session.Store, resolver *credential.Resolver, logger *slog.Logger) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config cannot be nil")
	case store == nil:
		return nil, errors.New("store cannot be nil")
	case resolver == nil:
		return nil, errors.New("resolver cannot be nil")
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		logger:   logger,
		engine:   gin.New(),
	}
	s.engine.SetHTMLTemplate(tmpl)
	s.engine.Use(gin.Recovery(), RequestLogger(logger))
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/", s.index)
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	{
		api.GET("/session", s.getSession)
		api.PUT("/settings", s.putSettings)
		api.POST("/reset", s.reset)
		api.POST("/messages", s.postMessage)
		api.GET("/credential", s.getCredential)
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("web server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// openGateway resolves the credential for each turn so a fixed .env is
// picked up without a restart.
func (s *Server) openGateway() (llm.Provider, error) {
	key := s.resolver.Lookup(s.cfg.LLM.KeyEnv())
	return llm.NewProvider(s.cfg, key, s.logger)
}

// existing returns the caller's conversation without starting one.
func (s *Server) existing(c *gin.Context) (*session.Conversation, bool) {
	id, err := c.Cookie(CookieName)
	if err != nil || id == "" {
		return nil, false
	}
	return s.store.Get(id)
}

// conversation returns the caller's conversation, starting one and setting
// the cookie when the browser has none or an unknown one.
func (s *Server) conversation(c *gin.Context) *session.Conversation {
	id, _ := c.Cookie(CookieName)
	conv := s.store.GetOrCreate(id)
	if conv.ID != id {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, conv.ID, 0, "/", "", false, true)
	}
	return conv
}
