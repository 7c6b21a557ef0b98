package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
	"github.com/techagentng/citizenchat/server/response"
)

func (s *Server) handleGetMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		limit, e := queryInt(c, "limit")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		page, err := s.MessageService.GetMessages(c.Request.Context(), id, currentUser(c), limit, c.Query("cursor"))
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "messages retrieved", http.StatusOK, page, nil)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		var req models.SendMessageRequest
		if e := decode(c, &req); e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		msg, err := s.MessageService.CreateMessage(c.Request.Context(), id, currentUser(c), &req)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "message sent", http.StatusCreated, msg, nil)
	}
}

func (s *Server) handleDeleteMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		msg, err := s.MessageService.DeleteMessage(c.Request.Context(), id, currentUser(c))
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "message deleted", http.StatusOK, msg, nil)
	}
}

func (s *Server) handleUpdateMessageStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		var req models.UpdateMessageStatusRequest
		if e := decode(c, &req); e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		msg, err := s.MessageService.UpdateMessageStatus(c.Request.Context(), id, req.Status, currentUser(c))
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "message status updated", http.StatusOK, msg, nil)
	}
}

func (s *Server) handleSearchMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		convID, err := uuid.Parse(c.Query("conversationId"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.Validation("conversationId must be a valid id"))
			return
		}
		limit, e := queryInt(c, "limit")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		msgs, err := s.MessageService.SearchMessages(c.Request.Context(), convID, currentUser(c), c.Query("query"), limit)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "", http.StatusOK, msgs, nil)
	}
}
