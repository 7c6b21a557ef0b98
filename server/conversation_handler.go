package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/techagentng/citizenchat/models"
	"github.com/techagentng/citizenchat/server/response"
)

func (s *Server) handleListConversations() gin.HandlerFunc {
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
		list, err := s.ConversationService.ListConversations(c.Request.Context(), currentUser(c), limit, offset)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "conversations retrieved", http.StatusOK, list, nil)
	}
}

func (s *Server) handleCreateConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateConversationRequest
		if e := decode(c, &req); e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		conv, created, err := s.ConversationService.CreateConversation(c.Request.Context(), currentUser(c), &req)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		if !created {
			response.JSON(c, "conversation already exists", http.StatusOK, conv, nil)
			return
		}
		response.JSON(c, "conversation created", http.StatusCreated, conv, nil)
	}
}

func (s *Server) handleGetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		conv, err := s.ConversationService.GetConversation(c.Request.Context(), id, currentUser(c))
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "conversation retrieved", http.StatusOK, conv, nil)
	}
}

func (s *Server) handleAddParticipants() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		var req models.AddParticipantsRequest
		if e := decode(c, &req); e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		added, err := s.ConversationService.AddParticipants(c.Request.Context(), id, currentUser(c), req.UserIDs)
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		if added == nil {
			added = []models.Participant{}
		}
		response.JSON(c, "participants added", http.StatusCreated, added, nil)
	}
}

func (s *Server) handleRemoveParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		removed, err := s.ConversationService.RemoveParticipant(c.Request.Context(), id, c.Query("targetUserId"), currentUser(c))
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		msg := "participant removed"
		if !removed {
			msg = "participant was not active"
		}
		response.JSON(c, msg, http.StatusOK, gin.H{"removed": removed}, nil)
	}
}

func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		var req models.MarkReadRequest
		if e := decodeOptional(c, &req); e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		if err := s.ConversationService.MarkMessagesAsRead(c.Request.Context(), id, currentUser(c), req.MessageID); err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "conversation marked as read", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleGetUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, e := pathUUID(c, "id")
		if e != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, e)
			return
		}
		count, err := s.ConversationService.GetUnreadCount(c.Request.Context(), id, currentUser(c))
		if err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "", http.StatusOK, gin.H{"unread_count": count}, nil)
	}
}
