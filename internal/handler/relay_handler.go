// Package handler contains the HTTP controller logic.
package handler

import (
	"errors"
	"net/http"

	"graceway-go/internal/config"
	"graceway-go/internal/model"
	"graceway-go/internal/service"
	"graceway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RelayHandler exposes the chat relay endpoint.
type RelayHandler struct {
	relayService service.RelayService
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(relayService service.RelayService) *RelayHandler {
	return &RelayHandler{relayService: relayService}
}

// RelayChatRequest is the relay endpoint's request body.
type RelayChatRequest struct {
	UserID         uint   `json:"userId"`
	Message        string `json:"message"`
	AssistantRole  string `json:"assistantRole"`
	ConversationID string `json:"conversationId"`
}

// Chat handles one chat turn. Identity comes from the verified token; the
// body's userId must agree with it.
func (h *RelayHandler) Chat(c *gin.Context) {
	var req RelayChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: userId, message"})
		return
	}
	if req.UserID == 0 || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: userId, message"})
		return
	}

	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}
	if user.ID != req.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "userId does not match the authenticated user"})
		return
	}

	if config.Conf.LLM.APIKey == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Server configuration error",
			"details": "LLM API key is not configured",
			"debug":   gin.H{"hasLLMKey": false, "hasDBConfig": config.Conf.Database.MySQL.DSN != ""},
		})
		return
	}
	if config.Conf.Database.MySQL.DSN == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Server configuration error",
			"details": "database is not configured",
			"debug":   gin.H{"hasLLMKey": true, "hasDBConfig": false},
		})
		return
	}

	result, err := h.relayService.Relay(c.Request.Context(), service.RelayRequest{
		UserID:         req.UserID,
		Message:        req.Message,
		AssistantRole:  req.AssistantRole,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		log.Error("relay turn failed", err)
		details := "Failed to generate a reply"
		if errors.Is(err, service.ErrRunTimeout) {
			details = "Assistant run did not complete in time"
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": details,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        result.Message,
		"conversationId": result.ConversationID,
		"assistantRole":  result.AssistantRole,
		"mode":           result.Mode,
	})
}

// currentUser pulls the authenticated user the auth middleware stored.
func currentUser(c *gin.Context) *model.User {
	v, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, ok := v.(*model.User)
	if !ok {
		return nil
	}
	return user
}
