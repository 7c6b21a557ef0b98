package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/db"
	"github.com/techagentng/citizenchat/realtime"
	"github.com/techagentng/citizenchat/services"
)

// Server has router instances, repositories and services.
type Server struct {
	Config              *config.Config
	DB                  *db.GormDB
	ConversationService services.ConversationService
	MessageService      services.MessageService
	PresenceService     services.PresenceService
	Hub                 *realtime.Hub
	// RateLimitStore backs the write limiter. Defaults to an in-memory store.
	RateLimitStore ratelimit.Store
}

// Handler builds the router without starting a listener.
func (s *Server) Handler() *gin.Engine {
	if s.RateLimitStore == nil {
		s.RateLimitStore = ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Second,
			Limit: s.Config.RateLimitPerSecond,
		})
	}
	return s.setupRouter()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests.
func (s *Server) Start() {
	r := s.Handler()

	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server started", "addr", addr, "env", s.Config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", "err", err)
	}
	log.Info("server exiting")
}
