package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/techagentng/citizenchat/models"
	"github.com/techagentng/citizenchat/server/response"
)

func (s *Server) handleGetPresence() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses, err := s.PresenceService.GetStatus(c.Request.Context(), queryList(c, "userIds"))
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "", http.StatusOK, statuses, nil)
	}
}

func (s *Server) handleSetPresence() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SetPresenceRequest
		if e := decode(c, &req); e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		rec, err := s.PresenceService.SetOnline(c.Request.Context(), currentUser(c), *req.IsOnline, nil)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "presence updated", http.StatusOK, rec, nil)
	}
}

func (s *Server) handleListOnline() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, e := queryInt(c, "limit")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		offset, e := queryInt(c, "offset")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		includeOffline, e := queryBool(c, "includeOffline")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		list, err := s.PresenceService.ListOnline(c.Request.Context(), currentUser(c), includeOffline, limit, offset)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "", http.StatusOK, list, nil)
	}
}
