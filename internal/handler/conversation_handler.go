package handler

import (
	"errors"
	"net/http"
	"strconv"

	"graceway-go/internal/service"
	"graceway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler exposes conversation history endpoints.
type ConversationHandler struct {
	convService service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(convService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// List returns the user's conversations, newest first.
func (h *ConversationHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	conversations, err := h.convService.ListConversations(user.ID, limit)
	if err != nil {
		log.Error("failed to list conversations", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// MostRecent returns the newest conversation with the given assistant plus
// its full message history, or an empty body when none exists yet.
func (h *ConversationHandler) MostRecent(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	assistantID := c.Query("assistantId")
	if assistantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assistantId is required"})
		return
	}

	conv, messages, err := h.convService.MostRecent(user.ID, assistantID)
	if err != nil {
		log.Error("failed to load most recent conversation", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	if conv == nil {
		c.JSON(http.StatusOK, gin.H{"conversation": nil, "messages": []struct{}{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}

// Messages returns one conversation's history after an ownership check.
func (h *ConversationHandler) Messages(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	conv, messages, err := h.convService.GetMessages(user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrConversationNotOwned) {
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation does not belong to the authenticated user"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv, "messages": messages})
}
