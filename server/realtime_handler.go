package server

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
	"github.com/techagentng/citizenchat/realtime"
	"github.com/techagentng/citizenchat/server/response"
	"github.com/techagentng/citizenchat/services/jwt"
)

// handleRealtimeToken issues the short-lived token used to open the
// websocket, since browsers cannot set headers on the upgrade request.
func (s *Server) handleRealtimeToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, expiresAt, err := jwt.GenerateRealtimeToken(currentUser(c), s.Config.JWTSecret, s.Config.RealtimeTokenTTL)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "realtime token issued", http.StatusOK, models.RealtimeTokenResponse{
			Token:     token,
			ExpiresAt: expiresAt.Unix(),
			URL:       "/api/v1/realtime/ws?token=" + url.QueryEscape(token),
		}, nil)
	}
}

func (s *Server) handleRealtimeConnect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Hub == nil {
			response.JSON(c, "", http.StatusNotFound, nil, errs.NotFound("realtime is disabled"))
			return
		}
		userID, err := jwt.ValidateRealtimeToken(c.Query("token"), s.Config.JWTSecret)
		if err != nil {
			response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		realtime.ServeWS(s.Hub, userID, c.Writer, c.Request)
	}
}

func (s *Server) handleHealthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.DB.Ping(c.Request.Context()); err != nil {
			response.JSON(c, "", http.StatusServiceUnavailable, nil, errs.New("store unavailable", http.StatusServiceUnavailable))
			return
		}
		response.JSON(c, "ok", http.StatusOK, nil, nil)
	}
}
