// Package api provides the local credential agent HTTP server. It exposes the
// held session to other processes on the machine: status, the raw access
// token, decoded claims, and logout.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oauthkit/oauthkit/internal/logging"
	"github.com/oauthkit/oauthkit/internal/oauth/session"

	log "github.com/sirupsen/logrus"
)

// Server serves the credential agent API on a local port.
type Server struct {
	engine  *gin.Engine
	srv     *http.Server
	manager *session.Manager
	port    int
}

// NewServer builds the agent server around an authenticated session manager.
func NewServer(port int, manager *session.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware())

	s := &Server{
		engine:  engine,
		manager: manager,
		port:    port,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/token", s.handleToken)
	v1.GET("/userinfo", s.handleUserInfo)
	v1.POST("/logout", s.handleLogout)
}

// Start begins serving in a background goroutine. It binds to loopback only;
// the agent is not meant to be reachable off the machine.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.engine,
	}
	go func() {
		log.Infof("credential agent listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("credential agent server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// Handler exposes the underlying engine, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{"authenticated": s.manager.IsAuthenticated()}
	if expiresAt := s.manager.ExpiresAt(); !expiresAt.IsZero() {
		resp["expires_at"] = expiresAt.UnixMilli()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleToken(c *gin.Context) {
	token := s.manager.AccessToken()
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}
	resp := gin.H{"access_token": token}
	if expiresAt := s.manager.ExpiresAt(); !expiresAt.IsZero() {
		resp["expires_at"] = expiresAt.UnixMilli()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUserInfo(c *gin.Context) {
	info := s.manager.TokenInfo()
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleLogout(c *gin.Context) {
	s.manager.Logout()
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}
