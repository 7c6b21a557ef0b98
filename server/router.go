package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" || s.Config.Env == "test" {
		r := gin.New()
		r.Use(gin.Recovery())
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	// By default gin.DefaultWriter = os.Stdout
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origins := s.Config.AccessControlAllowOrigin; origins != "" && origins != "*" {
		corsConfig.AllowOrigins = strings.Split(origins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	limitRate := limitWrites(s.RateLimitStore)

	router.GET("/healthz", s.handleHealthz())

	apirouter := router.Group("/api/v1")
	apirouter.Use(s.requestTimeout())
	// the websocket authenticates with its own short-lived token
	apirouter.GET("/realtime/ws", s.handleRealtimeConnect())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())

	authorized.GET("/conversations", s.handleListConversations())
	authorized.POST("/conversations", limitRate, s.handleCreateConversation())
	authorized.GET("/conversations/:id", s.handleGetConversation())
	authorized.GET("/conversations/:id/messages", s.handleGetMessages())
	authorized.POST("/conversations/:id/messages", limitRate, s.handleSendMessage())
	authorized.POST("/conversations/:id/participants", limitRate, s.handleAddParticipants())
	authorized.DELETE("/conversations/:id/participants", limitRate, s.handleRemoveParticipant())
	authorized.POST("/conversations/:id/read", s.handleMarkRead())
	authorized.GET("/conversations/:id/unread", s.handleGetUnreadCount())

	authorized.GET("/messages/search", s.handleSearchMessages())
	authorized.DELETE("/messages/:id", limitRate, s.handleDeleteMessage())
	authorized.PUT("/messages/:id/status", s.handleUpdateMessageStatus())

	authorized.GET("/presence", s.handleGetPresence())
	authorized.POST("/presence", s.handleSetPresence())
	authorized.GET("/presence/online", s.handleListOnline())

	authorized.POST("/realtime/token", s.handleRealtimeToken())
}
